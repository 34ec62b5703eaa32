package querybuilder

import (
	"context"
	"fmt"
	"iter"

	"github.com/roach88/provgraph/internal/convert"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/queryir"
	"github.com/roach88/provgraph/internal/querysql"
	"github.com/roach88/provgraph/internal/store"
)

// Dict is one result row keyed by tag, then by projected field.
type Dict map[string]map[string]any

// run compiles the cached query, optionally rewritten by derive, and starts
// streaming it. A session failure empties the cache.
func (b *Builder) run(ctx context.Context, derive func(*queryir.Select) *queryir.Select, batchSize int) (*store.Cursor, *plan, error) {
	c, err := b.compiled()
	if err != nil {
		return nil, nil, err
	}
	text, args := c.sql, c.args
	if derive != nil {
		if c.plan.query == nil {
			return nil, nil, fmt.Errorf("injected query of type %T cannot be rewritten", c.plan.raw)
		}
		if text, args, err = b.compiler.Compile(derive(c.plan.query)); err != nil {
			return nil, nil, err
		}
	}
	cur, err := b.session.Stream(ctx, text, args, batchSize)
	if err != nil {
		b.cache = nil
		return nil, nil, err
	}
	return cur, c.plan, nil
}

// withLimit returns a copy of sel returning at most n rows.
func withLimit(n int) func(*queryir.Select) *queryir.Select {
	return func(sel *queryir.Select) *queryir.Select {
		c := *sel
		if c.Limit == nil || *c.Limit > n {
			c.Limit = &n
		}
		return &c
	}
}

// Count returns the number of rows the query produces.
func (b *Builder) Count(ctx context.Context) (int, error) {
	cur, _, err := b.run(ctx, querysql.CountQuery, 1)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	if !cur.Next() {
		if err := cur.Err(); err != nil {
			b.cache = nil
			return 0, err
		}
		return 0, fmt.Errorf("count query returned no row")
	}
	n, ok := cur.Row()[0].(int64)
	if !ok {
		return 0, fmt.Errorf("count query returned %T", cur.Row()[0])
	}
	return int(n), nil
}

// First returns the first row, or nil when there is none.
func (b *Builder) First(ctx context.Context) ([]any, error) {
	for row, err := range b.rows(ctx, withLimit(1), 1) {
		return row, err
	}
	return nil, nil
}

// One returns the only row. It fails with ErrNotFound when there is none
// and with ErrMultipleResults when there are several.
func (b *Builder) One(ctx context.Context) ([]any, error) {
	var found [][]any
	for row, err := range b.rows(ctx, withLimit(2), 2) {
		if err != nil {
			return nil, err
		}
		found = append(found, row)
	}
	switch len(found) {
	case 0:
		return nil, qerr.New(qerr.CodeNotFound, "no result was found")
	case 1:
		return found[0], nil
	}
	return nil, qerr.New(qerr.CodeMultipleResults, "multiple results were found")
}

// IterAll streams decoded rows, fetching batchSize rows from the session
// at a time. Each call runs the query afresh.
func (b *Builder) IterAll(ctx context.Context, batchSize int) iter.Seq2[[]any, error] {
	return b.rows(ctx, nil, batchSize)
}

// IterDict is IterAll with each row keyed by tag and field.
func (b *Builder) IterDict(ctx context.Context, batchSize int) iter.Seq2[Dict, error] {
	return func(yield func(Dict, error) bool) {
		var p *plan
		for row, err := range b.rowsWith(ctx, nil, batchSize, func(pl *plan) { p = pl }) {
			if err != nil {
				yield(nil, err)
				return
			}
			d, err := p.dict(row)
			if !yield(d, err) || err != nil {
				return
			}
		}
	}
}

// All returns every decoded row.
func (b *Builder) All(ctx context.Context) ([][]any, error) {
	var out [][]any
	for row, err := range b.IterAll(ctx, b.batchSize) {
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// AsDicts returns every row keyed by tag and field.
func (b *Builder) AsDicts(ctx context.Context) ([]Dict, error) {
	var out []Dict
	for d, err := range b.IterDict(ctx, b.batchSize) {
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (b *Builder) rows(ctx context.Context, derive func(*queryir.Select) *queryir.Select, batchSize int) iter.Seq2[[]any, error] {
	return b.rowsWith(ctx, derive, batchSize, nil)
}

// rowsWith streams rows, reporting the plan to onPlan before the first row.
func (b *Builder) rowsWith(ctx context.Context, derive func(*queryir.Select) *queryir.Select, batchSize int, onPlan func(*plan)) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		cur, p, err := b.run(ctx, derive, batchSize)
		if err != nil {
			yield(nil, err)
			return
		}
		defer cur.Close()
		if onPlan != nil {
			onPlan(p)
		}
		for cur.Next() {
			row, err := p.decode(cur.Row(), b.hook)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
		if err := cur.Err(); err != nil {
			b.cache = nil
			yield(nil, err)
		}
	}
}

// decode turns one result row into one value per projection, each passed
// through the hook. Rows of an injected query are passed through cell by
// cell.
func (p *plan) decode(cells []any, hook convert.Hook) ([]any, error) {
	if len(p.projections) == 0 {
		out := make([]any, len(cells))
		for i, c := range cells {
			v, err := hook.ToDomain(c)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	out := make([]any, len(p.projections))
	pos := 0
	for i, pr := range p.projections {
		n := len(pr.Columns)
		if pos+n > len(cells) {
			return nil, fmt.Errorf("row has %d cells, projections need more", len(cells))
		}
		v, err := pr.Decode(cells[pos : pos+n])
		if err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", pr.Tag, pr.Field, err)
		}
		if v, err = hook.ToDomain(v); err != nil {
			return nil, fmt.Errorf("convert %s.%s: %w", pr.Tag, pr.Field, err)
		}
		out[i] = v
		pos += n
	}
	return out, nil
}

func (p *plan) dict(row []any) (Dict, error) {
	if len(p.projections) == 0 {
		return nil, qerr.New(qerr.CodeInvalidProjection, "an injected query has no projections to key rows by")
	}
	d := Dict{}
	for i, pr := range p.projections {
		fields, ok := d[pr.Tag]
		if !ok {
			fields = map[string]any{}
			d[pr.Tag] = fields
		}
		fields[pr.Field] = row[i]
	}
	return d, nil
}
