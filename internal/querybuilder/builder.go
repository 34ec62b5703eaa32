// Package querybuilder assembles graph queries over the provenance store.
//
// A Builder accumulates a path of tagged vertices, each joined to an
// earlier one through a relationship keyword, together with per-tag filters
// and projections, ordering, limit, offset and distinct. Execution compiles
// the path into one SQL statement, runs it on the session it was handed and
// decodes rows back into values.
//
// A Builder is not safe for concurrent use.
package querybuilder

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/provgraph/internal/classify"
	"github.com/roach88/provgraph/internal/convert"
	"github.com/roach88/provgraph/internal/queryir"
	"github.com/roach88/provgraph/internal/querysql"
	"github.com/roach88/provgraph/internal/store"
)

// DefaultMaxDepth bounds closure recursion when no other bound is set.
const DefaultMaxDepth = 1000

// DefaultBatchSize is the batch size used by All and AsDicts.
const DefaultBatchSize = 100

// Session is the connection a builder executes on. *store.Session
// implements it.
type Session interface {
	Stream(ctx context.Context, query string, args []any, batchSize int) (*store.Cursor, error)
	Dialect() querysql.Dialect
}

// Builder builds and runs one graph query.
type Builder struct {
	session   Session
	logger    *slog.Logger
	hook      convert.Hook
	resolver  *classify.Resolver
	compiler  *querysql.SQLCompiler
	maxDepth  int
	batchSize int

	state    *state
	cache    *compiled
	injected queryir.Query
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger receiving deprecation notices and
// stale-process-type warnings.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithHook sets the hook decoded cells are passed through. The default
// promotes entity rows to the structs of package entity.
func WithHook(h convert.Hook) Option {
	return func(b *Builder) { b.hook = h }
}

// WithResolver sets the selector resolver.
func WithResolver(r *classify.Resolver) Option {
	return func(b *Builder) { b.resolver = r }
}

// WithMaxDepth bounds closure recursion. Zero leaves it unbounded.
func WithMaxDepth(n int) Option {
	return func(b *Builder) { b.maxDepth = n }
}

// WithBatchSize sets the batch size used by All and AsDicts.
func WithBatchSize(n int) Option {
	return func(b *Builder) { b.batchSize = n }
}

// WithInPolicy overrides the session dialect's in-clause policy.
func WithInPolicy(p querysql.InPolicy) Option {
	return func(b *Builder) { b.compiler = &querysql.SQLCompiler{In: p} }
}

// New creates an empty builder executing on session.
func New(session Session, opts ...Option) *Builder {
	b := &Builder{
		session:   session,
		maxDepth:  DefaultMaxDepth,
		batchSize: DefaultBatchSize,
		state:     newState(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if b.hook == nil {
		b.hook = convert.NewRegistry()
	}
	if b.resolver == nil {
		b.resolver = classify.NewResolver(classify.WithLogger(b.logger))
	}
	if b.compiler == nil {
		b.compiler = querysql.NewSQLCompiler(session.Dialect())
	}
	if b.batchSize < 1 {
		b.batchSize = DefaultBatchSize
	}
	return b
}

// Tags returns the vertex and edge tags in path order.
func (b *Builder) Tags() []string {
	var tags []string
	for _, v := range b.state.path {
		tags = append(tags, v.Tag)
		if v.EdgeTag != "" {
			tags = append(tags, v.EdgeTag)
		}
	}
	return tags
}

// InjectQuery replaces the compiled query with q. Injected queries are
// executed as given and never rebuilt from the path; their cells are passed
// through the hook one by one.
func (b *Builder) InjectQuery(q queryir.Query) {
	b.injected = q
	b.cache = nil
}
