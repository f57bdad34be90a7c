package models

// GeneratedQuery is the statement synthesized for one request. It is never
// persisted.
type GeneratedQuery struct {
	ID     string `json:"id"`
	Action Action `json:"action"`
	Input  string `json:"input"`
	SQL    string `json:"sql"`
}

type ResultKind string

const (
	ResultRows     ResultKind = "rows"
	ResultAffected ResultKind = "affected"
)

// Result is the outcome of executing one statement. Reads carry Columns and
// Rows; writes carry only Affected.
type Result struct {
	Kind     ResultKind `json:"kind"`
	Columns  []string   `json:"columns,omitempty"`
	Rows     [][]any    `json:"rows,omitempty"`
	Affected int64      `json:"affected"`
}

// RowCount returns the number of rows a read returned.
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}
