package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - list runs when empty
	Name     string // optional - filter entries by record name
	Task     int    // optional - filter entries by task (source line)
}

// RunInfo describes an archived run.
type RunInfo struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	Source        string    `json:"source"`
	Commands      int       `json:"commands"`
	Skipped       int       `json:"skipped"`
	Finished      bool      `json:"finished"`
	LocksAcquired int64     `json:"locks_acquired"`
	LocksReleased int64     `json:"locks_released"`
}

// TraceEntry is one archived audit entry.
type TraceEntry struct {
	Seq    int64  `json:"seq"`
	Micros uint64 `json:"micros"`
	Task   int    `json:"task"`
	Event  string `json:"event"`
	Text   string `json:"text"`
}

// TraceResult holds the entries of one run.
type TraceResult struct {
	Run     RunInfo      `json:"run"`
	Entries []TraceEntry `json:"entries"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect archived runs",
		Long: `List the runs archived in a database, or show the audit entries of one
run. Entries can be narrowed to one record name or one task; a task is
identified by the source line of its command.

Examples:
  chash trace --db ./chash.db
  chash trace --db ./chash.db --run 0191f7f0-...
  chash trace --db ./chash.db --run 0191f7f0-... --name alice
  chash trace --db ./chash.db --run 0191f7f0-... --task 4 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show")
	cmd.Flags().StringVar(&opts.Name, "name", "", "only entries for this record name")
	cmd.Flags().IntVar(&opts.Task, "task", 0, "only entries for this task")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	if opts.RunID == "" && (opts.Name != "" || opts.Task != 0) {
		return NewExitError(ExitCommandError, "--name and --task require --run")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunID == "" {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		infos := make([]RunInfo, len(runs))
		for i, r := range runs {
			infos[i] = toRunInfo(r)
		}
		if opts.Format == "json" {
			return outputTraceJSON(cmd.OutOrStdout(), infos)
		}
		outputRunsText(cmd.OutOrStdout(), infos)
		return nil
	}

	run, err := st.GetRun(ctx, opts.RunID)
	if errors.Is(err, store.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("%s: run %s", ErrCodeNotFound, opts.RunID), err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	entries, err := st.ReadEntries(ctx, opts.RunID, store.EntryFilter{Name: opts.Name, Task: opts.Task})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read entries", err)
	}

	result := TraceResult{
		Run:     toRunInfo(run),
		Entries: make([]TraceEntry, len(entries)),
	}
	for i, e := range entries {
		result.Entries[i] = toTraceEntry(e)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd.OutOrStdout(), result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func toRunInfo(r store.Run) RunInfo {
	return RunInfo{
		ID:            r.ID,
		StartedAt:     r.StartedAt,
		Source:        r.Source,
		Commands:      r.Commands,
		Skipped:       r.Skipped,
		Finished:      r.Finished,
		LocksAcquired: r.LocksAcquired,
		LocksReleased: r.LocksReleased,
	}
}

// toTraceEntry renders an archived entry with the same text as the audit log.
func toTraceEntry(e store.Entry) TraceEntry {
	ae := auditlog.Entry{
		Seq:    e.Seq,
		Micros: e.Micros,
		Task:   e.Task,
		Event:  auditlog.Event(e.Event),
		Hash:   e.Hash,
		Name:   e.Name,
		Value:  e.Value,
	}
	return TraceEntry{
		Seq:    e.Seq,
		Micros: e.Micros,
		Task:   e.Task,
		Event:  e.Event,
		Text:   ae.Text(),
	}
}

// outputTraceJSON outputs a trace or run listing as JSON.
func outputTraceJSON(w io.Writer, data interface{}) error {
	response := CLIResponse{
		Status: "ok",
		Data:   data,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

func outputRunsText(w io.Writer, runs []RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return
	}

	fmt.Fprintf(w, "%d run(s)\n\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Source)
		fmt.Fprintf(w, "  Commands: %d (%d skipped)  Status: %s\n", r.Commands, r.Skipped, runStatus(r))
	}
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s\n", result.Run.ID)
	fmt.Fprintf(w, "Source: %s\n", result.Run.Source)
	fmt.Fprintf(w, "Status: %s\n", runStatus(result.Run))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Entries ===")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	}
	for _, e := range result.Entries {
		if verbose {
			fmt.Fprintf(w, "  [%d] task %d %d: %s\n", e.Seq, e.Task, e.Micros, e.Text)
			continue
		}
		fmt.Fprintf(w, "  [%d] task %d: %s\n", e.Seq, e.Task, e.Text)
	}
}

// runStatus returns a human-readable run status.
func runStatus(r RunInfo) string {
	if r.Finished {
		return fmt.Sprintf("Finished (%d acquisitions, %d releases)", r.LocksAcquired, r.LocksReleased)
	}
	return "Unfinished (interrupted)"
}
