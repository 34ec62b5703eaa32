package querybuilder

import (
	"fmt"
	"slices"

	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/queryir"
)

// compiled is the one-slot query cache. hash is the content hash of the
// frozen spec the plan was built from; it is empty for injected queries.
type compiled struct {
	hash string
	plan *plan
	sql  string
	args []any
}

// Hash returns the content hash of the builder's current spec.
func (b *Builder) Hash() (string, error) {
	return ir.SpecHash(b.Spec())
}

// compiled returns the cached plan, rebuilding it when the spec hash has
// changed since the last build. An injected query is compiled once and
// never rebuilt.
func (b *Builder) compiled() (*compiled, error) {
	if b.injected != nil {
		if b.cache != nil {
			return b.cache, nil
		}
		text, args, err := b.compiler.Compile(b.injected)
		if err != nil {
			return nil, fmt.Errorf("compile injected query: %w", err)
		}
		sel, _ := b.injected.(*queryir.Select)
		b.cache = &compiled{plan: &plan{query: sel, raw: b.injected}, sql: text, args: args}
		return b.cache, nil
	}

	hash, err := b.Hash()
	if err != nil {
		return nil, err
	}
	if b.cache != nil && b.cache.hash == hash {
		return b.cache, nil
	}
	b.cache = nil

	p, err := b.build(b.state)
	if err != nil {
		return nil, err
	}
	text, args, err := b.compiler.Compile(p.query)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}
	b.cache = &compiled{hash: hash, plan: p, sql: text, args: args}
	b.logger.Debug("query built",
		"hash", hash[:12],
		"vertices", len(b.state.path),
		"params", len(args),
	)
	return b.cache, nil
}

// SQL returns the statement and parameters the builder would execute.
func (b *Builder) SQL() (string, []any, error) {
	c, err := b.compiled()
	if err != nil {
		return "", nil, err
	}
	return c.sql, slices.Clone(c.args), nil
}
