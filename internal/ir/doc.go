// Package ir provides canonical serialisation and content hashing for
// query specifications.
//
// This package imports nothing internal. Every higher layer that needs a
// stable identity for a structure (the query builder's compile cache, the
// harness golden files) goes through MarshalCanonical and SpecHash so two
// structures with identical content always produce identical bytes.
//
// Key design constraints:
//   - Object keys are ordered by UTF-16 code units (RFC 8785), not UTF-8 bytes
//   - Strings are NFC normalised at the serialisation boundary
//   - No HTML escaping
//   - Integral floats serialise like integers so 1 and 1.0 hash identically
package ir
