package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/engine"
	"github.com/roach88/chash/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - specific run only
}

// ReplayRunResult holds the replay result for a single run.
type ReplayRunResult struct {
	RunID      string `json:"run_id"`
	Entries    int    `json:"entries"`
	Records    int    `json:"records"`
	Finished   bool   `json:"finished"`
	Consistent bool   `json:"consistent"`
	Problem    string `json:"problem,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Runs          []ReplayRunResult `json:"runs"`
	TotalRuns     int               `json:"total_runs"`
	AllConsistent bool              `json:"all_consistent"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild archived runs and verify their snapshots",
		Long: `Rebuild the final table of each archived run by applying its insert and
delete entries in order, then compare the result with the archived
snapshot. The archived lock counters are checked against the entries too.

Unfinished (interrupted) runs have no snapshot; they are replayed for
sequence errors only.

Exit codes:
  0 - All runs are consistent
  1 - A replay differs from its archive
  2 - Command error (database not found, etc.)

Examples:
  chash replay --db ./chash.db
  chash replay --db ./chash.db --run 0191f7f0-...
  chash replay --db ./chash.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var runs []store.Run
	if opts.RunID != "" {
		run, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			return WrapExitError(ExitCommandError, fmt.Sprintf("%s: run %s", ErrCodeNotFound, opts.RunID), err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run", err)
		}
		runs = []store.Run{run}
	} else {
		runs, err = st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
	}

	result := ReplayResult{
		Runs:          make([]ReplayRunResult, 0, len(runs)),
		TotalRuns:     len(runs),
		AllConsistent: true,
	}

	for _, run := range runs {
		runResult, err := replayAndVerifyRun(ctx, st, run)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", run.ID), err)
		}

		result.Runs = append(result.Runs, runResult)
		if !runResult.Consistent {
			result.AllConsistent = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}

	return outputReplayText(cmd, result, opts.Verbose)
}

// replayAndVerifyRun rebuilds one run and compares it with its archive.
// Store read failures are returned as errors; inconsistencies are reported
// in the result.
func replayAndVerifyRun(ctx context.Context, st *store.Store, run store.Run) (ReplayRunResult, error) {
	entries, err := st.ReadEntries(ctx, run.ID, store.EntryFilter{})
	if err != nil {
		return ReplayRunResult{}, err
	}

	res := ReplayRunResult{
		RunID:      run.ID,
		Entries:    len(entries),
		Finished:   run.Finished,
		Consistent: true,
	}
	fail := func(format string, args ...interface{}) (ReplayRunResult, error) {
		res.Consistent = false
		res.Problem = fmt.Sprintf(format, args...)
		return res, nil
	}

	replayed, err := engine.Replay(entries)
	if err != nil {
		return fail("%v", err)
	}
	res.Records = len(replayed)

	if !run.Finished {
		return res, nil
	}

	archived, err := st.ReadSnapshot(ctx, run.ID)
	if err != nil {
		return ReplayRunResult{}, err
	}
	if !slices.Equal(replayed, archived) {
		return fail("replay has %d record(s), archived snapshot has %d, or they differ", len(replayed), len(archived))
	}

	// The report's own shared hold is archived but not counted.
	var acquired, released int64
	for _, e := range entries {
		if e.Task == engine.ReportTask {
			continue
		}
		switch auditlog.Event(e.Event) {
		case auditlog.EventWriteAcquired, auditlog.EventReadAcquired:
			acquired++
		case auditlog.EventWriteReleased, auditlog.EventReadReleased:
			released++
		}
	}
	if acquired != run.LocksAcquired || released != run.LocksReleased {
		return fail("entries show %d/%d acquisitions/releases, run recorded %d/%d",
			acquired, released, run.LocksAcquired, run.LocksReleased)
	}

	return res, nil
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllConsistent {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeReplay,
			Message: "replay verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllConsistent {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.TotalRuns == 0 {
		fmt.Fprintln(w, "No runs found in database.")
		return nil
	}

	fmt.Fprintf(w, "Replay Summary: %d run(s)\n", result.TotalRuns)
	fmt.Fprintln(w)

	for _, run := range result.Runs {
		status := "✓"
		if !run.Consistent {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Run: %s\n", status, run.RunID)
		fmt.Fprintf(w, "  Entries: %d, records after replay: %d\n", run.Entries, run.Records)
		if verbose || !run.Finished {
			fmt.Fprintf(w, "  Finished: %v\n", run.Finished)
		}
		if run.Problem != "" {
			fmt.Fprintf(w, "  Problem: %s\n", run.Problem)
		}
		fmt.Fprintln(w)
	}

	if result.AllConsistent {
		fmt.Fprintln(w, "✓ All runs consistent with their archives")
		return nil
	}

	fmt.Fprintln(w, "✗ Replay verification failed")
	return NewExitError(ExitFailure, "replay verification failed")
}
