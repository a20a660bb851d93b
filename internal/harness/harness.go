package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/command"
	"github.com/roach88/chash/internal/engine"
	"github.com/roach88/chash/internal/records"
	"github.com/roach88/chash/internal/store"
	"github.com/roach88/chash/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a deterministic clock and run ID.
type Harness struct {
	store  *store.Store
	clock  *testutil.DeterministicClock
	runGen engine.RunIDGenerator
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Parse the command lines
// 2. Create the archive run and wire the audit log to it
// 3. Execute the commands and write the report
// 4. Replay the archive and compare with the archived snapshot
// 5. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		clock:  testutil.NewDeterministicClock(0),
		runGen: testutil.NewFixedRunIDGenerator(scenario.RunID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result, err := h.execute(ctx, scenario)
	if err != nil {
		return nil, err
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario) (*Result, error) {
	batch, err := command.Parse(
		strings.NewReader(strings.Join(scenario.Commands, "\n")),
		command.Options{NormalizeNames: scenario.NormalizeNames},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse commands: %w", err)
	}

	// Archive writes must outlive a cancelled run.
	archiveCtx := context.WithoutCancel(ctx)

	result := NewResult()
	result.RunID = h.runGen.Generate()
	result.Skipped = batch.Skipped

	run := store.Run{
		ID:        result.RunID,
		StartedAt: time.Unix(0, 0).UTC(),
		Source:    scenario.Name,
		Commands:  len(batch.Commands),
		Skipped:   len(batch.Skipped),
	}
	if err := h.store.WriteRun(archiveCtx, run); err != nil {
		return nil, fmt.Errorf("failed to write run: %w", err)
	}

	var buf bytes.Buffer
	sink := auditlog.NewArchiveSink(archiveCtx, h.store, result.RunID, h.logger)
	log := auditlog.New(&buf, h.clock, sink)
	coord := engine.NewCoordinator(records.New(), log, engine.WithLogger(h.logger))

	runCtx := ctx
	if d := scenario.timeout(); d > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	exec := engine.NewExecutor(coord, engine.ExecutorOptions{
		Workers:    scenario.Workers,
		Sequential: scenario.Sequential,
		Logger:     h.logger,
	})
	report, runErr := exec.Execute(runCtx, batch.Commands)
	switch {
	case runErr == nil:
	case engine.IsInterrupted(runErr):
		result.Interrupted = true
	default:
		log.Close()
		return nil, fmt.Errorf("failed to execute commands: %w", runErr)
	}
	result.Stats = coord.Stats()

	if err := log.Close(); err != nil {
		return nil, fmt.Errorf("failed to close audit log: %w", err)
	}

	if !result.Interrupted {
		if err := h.store.FinishRun(archiveCtx, result.RunID, report.Stats.Acquired, report.Stats.Released); err != nil {
			return nil, fmt.Errorf("failed to finish run: %w", err)
		}
	}

	result.Lines = splitLines(buf.String())
	result.Events = stripTimestamps(result.Lines)

	replayed, err := h.verifyArchive(archiveCtx, result, report)
	if err != nil {
		return nil, err
	}
	if result.Interrupted {
		result.Snapshot = replayed
	} else {
		result.Snapshot = report.Snapshot
	}

	switch {
	case scenario.ExpectInterrupted && !result.Interrupted:
		result.AddError("expected the run to be interrupted, but every command completed")
	case !scenario.ExpectInterrupted && result.Interrupted:
		result.AddError(fmt.Sprintf("run was interrupted: %v", runErr))
	}

	h.logger.Info("scenario executed",
		"scenario", scenario.Name,
		"run_id", result.RunID,
		"lines", len(result.Lines),
		"interrupted", result.Interrupted,
	)
	return result, nil
}

// verifyArchive replays the archived entries and checks them against the
// archived snapshot and the in-memory report. Returns the replayed records.
func (h *Harness) verifyArchive(ctx context.Context, result *Result, report engine.Report) ([]records.Record, error) {
	entries, err := h.store.ReadEntries(ctx, result.RunID, store.EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read archived entries: %w", err)
	}

	// One archived entry per timestamped line.
	if want := countTimestamped(result.Lines); len(entries) != want {
		result.AddError(fmt.Sprintf("archive holds %d entries, log has %d timestamped lines", len(entries), want))
	}

	replayed, err := engine.Replay(entries)
	if err != nil {
		result.AddError(fmt.Sprintf("archive replay failed: %v", err))
		return nil, nil
	}

	if result.Interrupted {
		return replayed, nil
	}

	archived, err := h.store.ReadSnapshot(ctx, result.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to read archived snapshot: %w", err)
	}
	if !slices.Equal(replayed, archived) {
		result.AddError(fmt.Sprintf("replayed state %v does not match archived snapshot %v", replayed, archived))
	}
	if !slices.Equal(archived, report.Snapshot) {
		result.AddError(fmt.Sprintf("archived snapshot %v does not match report %v", archived, report.Snapshot))
	}
	return replayed, nil
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// stripTimestamps removes "<micros>: " prefixes. Summary and snapshot lines
// have none and pass through unchanged.
func stripTimestamps(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if ts, rest, ok := strings.Cut(l, ": "); ok && isDigits(ts) {
			out[i] = rest
			continue
		}
		out[i] = l
	}
	return out
}

func countTimestamped(lines []string) int {
	n := 0
	for _, l := range lines {
		if ts, _, ok := strings.Cut(l, ": "); ok && isDigits(ts) {
			n++
		}
	}
	return n
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
