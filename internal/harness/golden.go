package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/provgraph/internal/ir"
)

// Snapshot captures the observable outcome of a scenario: for every query,
// its count and rows, or its error code. Compiled SQL is left out, so a
// rendering change that keeps results stable does not churn golden files.
type Snapshot struct {
	ScenarioName string
	Queries      []QueryResult
}

// toCanonicalMap converts a Snapshot to plain maps for canonical JSON.
func (s *Snapshot) toCanonicalMap() map[string]any {
	queries := make([]any, len(s.Queries))
	for i, q := range s.Queries {
		entry := map[string]any{"name": q.Name}
		if q.ErrCode != "" {
			entry["error"] = q.ErrCode
		} else {
			rows := make([]any, len(q.Rows))
			for j, row := range q.Rows {
				rows[j] = row
			}
			entry["count"] = q.Count
			entry["rows"] = rows
		}
		queries[i] = entry
	}
	return map[string]any{
		"scenario": s.ScenarioName,
		"queries":  queries,
	}
}

// Marshal renders the snapshot as canonical JSON, the golden file format.
func (s *Snapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{ScenarioName: scenarioName, Queries: result.Queries}
	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
