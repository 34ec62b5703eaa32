// Package entity describes the relational shape of the provenance graph:
// the closed set of entity kinds, the table and columns backing each kind,
// and the domain structs rows are promoted to.
//
// The query compiler never hard-codes a column name. It asks the catalog
// (TableFor, Table.Field) so that internal/external renames such as the
// reserved-word _metadata column are applied in exactly one place.
package entity
