package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/provgraph/internal/convert"
	"github.com/roach88/provgraph/internal/entity"
	"github.com/roach88/provgraph/internal/ir"
	"github.com/roach88/provgraph/internal/qerr"
	"github.com/roach88/provgraph/internal/querybuilder"
	"github.com/roach88/provgraph/internal/specfile"
	"github.com/roach88/provgraph/internal/store"
	"github.com/roach88/provgraph/internal/testutil"
)

// Harness runs scenarios against a fixture graph with a deterministic
// clock and UUID sequence.
type Harness struct {
	store   *store.Store
	session *store.Session
	logger  *slog.Logger
}

// Run executes a scenario with logging discarded.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The fixture is written
// first, then every query is compiled from its spec, counted and fetched,
// and its expectations evaluated. An error is returned only when the
// scenario itself cannot run; query failures are recorded in the result.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clock := testutil.NewDeterministicClock()
	seed := scenario.Seed
	if seed == "" {
		// Unseeded scenarios still get stable UUIDs, keyed by name.
		derived, err := ir.ScenarioHash(map[string]any{"scenario": scenario.Name})
		if err != nil {
			return nil, err
		}
		seed = derived
	}
	uuids := testutil.NewSequentialUUIDs(seed)

	st, err := store.OpenWith(":memory:", store.Options{
		Driver:  store.DriverMattn,
		Now:     clock.Now,
		NewUUID: uuids.New,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if _, err := loadFixture(ctx, st, &scenario.Fixture); err != nil {
		return nil, fmt.Errorf("failed to load fixture: %w", err)
	}

	// The in-memory store has a single connection, so the session is opened
	// only once the fixture is written.
	session, err := st.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	h := &Harness{store: st, session: session, logger: logger}

	result := NewResult()
	for _, q := range scenario.Queries {
		qr := h.runQuery(ctx, q)
		result.Queries = append(result.Queries, qr)
		for _, msg := range EvaluateExpect(qr, q.Expect) {
			result.AddError(fmt.Sprintf("%s: %s", q.Name, msg))
		}
	}
	return result, nil
}

func (h *Harness) runQuery(ctx context.Context, q QueryCase) QueryResult {
	qr := QueryResult{Name: q.Name, Rows: [][]any{}}
	fail := func(err error) QueryResult {
		qr.Err = err
		qr.ErrCode = "ERROR"
		var qe *qerr.Error
		if errors.As(err, &qe) {
			qr.ErrCode = string(qe.Code)
		}
		h.logger.Debug("query failed", "query", q.Name, "error", err)
		return qr
	}

	spec := q.Spec
	if q.SpecFile != "" {
		loaded, err := specfile.Load(q.SpecFile)
		if err != nil {
			return fail(err)
		}
		spec = loaded
	}

	opts := []querybuilder.Option{
		querybuilder.WithLogger(h.logger),
		querybuilder.WithHook(convert.Passthrough),
	}
	if q.MaxDepth > 0 {
		opts = append(opts, querybuilder.WithMaxDepth(q.MaxDepth))
	}
	b, err := querybuilder.FromSpec(h.session, spec, opts...)
	if err != nil {
		return fail(err)
	}

	if qr.SQL, qr.Params, err = b.SQL(); err != nil {
		return fail(err)
	}
	if qr.Count, err = b.Count(ctx); err != nil {
		return fail(err)
	}
	rows, err := b.All(ctx)
	if err != nil {
		return fail(err)
	}
	for _, row := range rows {
		qr.Rows = append(qr.Rows, plainRow(row))
	}
	h.logger.Debug("query ran", "query", q.Name, "count", qr.Count, "rows", len(qr.Rows))
	return qr
}

// plainRow turns decoded cells into values canonical JSON can encode:
// entity rows become their field maps and times are formatted.
func plainRow(row []any) []any {
	out := make([]any, len(row))
	for i, cell := range row {
		out[i] = plainCell(cell)
	}
	return out
}

func plainCell(v any) any {
	switch t := v.(type) {
	case entity.Row:
		fields := make(map[string]any, len(t.Fields))
		for k, f := range t.Fields {
			fields[k] = plainCell(f)
		}
		return fields
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, f := range t {
			out[k] = plainCell(f)
		}
		return out
	case []any:
		return plainRow(t)
	}
	return v
}
