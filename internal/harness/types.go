package harness

import (
	"github.com/roach88/chash/internal/command"
	"github.com/roach88/chash/internal/engine"
	"github.com/roach88/chash/internal/records"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion and consistency check held.
	Pass bool `json:"pass"`

	RunID string `json:"run_id"`

	// Lines is the text audit log, one element per line.
	Lines []string `json:"lines"`

	// Events is Lines with the "<micros>: " prefixes removed.
	Events []string `json:"events"`

	// Snapshot is the final record set. For interrupted runs it is the state
	// rebuilt from the archive, since no report was written.
	Snapshot []records.Record `json:"snapshot"`

	Stats       engine.Stats          `json:"stats"`
	Skipped     []*command.ParseError `json:"skipped,omitempty"`
	Interrupted bool                  `json:"interrupted"`
	Errors      []string              `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
