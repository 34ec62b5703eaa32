package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every query met its expectations.
	Pass bool `json:"pass"`

	// Queries holds one entry per query case, in scenario order.
	Queries []QueryResult `json:"queries"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// QueryResult is what one query produced.
type QueryResult struct {
	Name   string  `json:"name"`
	SQL    string  `json:"sql,omitempty"`
	Params []any   `json:"params,omitempty"`
	Count  int     `json:"count"`
	Rows   [][]any `json:"rows"`

	// ErrCode is the query error code, or "ERROR" for an error that is not a
	// query error.
	ErrCode string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Queries: []QueryResult{},
		Errors:  []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
