package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/command"
	"github.com/roach88/chash/internal/config"
	"github.com/roach88/chash/internal/engine"
	"github.com/roach88/chash/internal/records"
	"github.com/roach88/chash/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	ConfigPath     string
	Output         string
	Database       string
	Workers        int
	NormalizeNames bool
	MetricsFile    string
	Sequential     bool

	// RunIDGenerator allows overriding run IDs (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator

	// Clock allows overriding audit timestamps (for testing).
	// If nil, defaults to a SystemClock.
	Clock auditlog.Clock
}

// RunSummary is the result printed after a run.
type RunSummary struct {
	RunID         string `json:"run_id,omitempty"`
	Source        string `json:"source"`
	Output        string `json:"output"`
	Database      string `json:"database,omitempty"`
	Commands      int    `json:"commands"`
	Skipped       int    `json:"skipped"`
	Records       int    `json:"records"`
	LocksAcquired int64  `json:"locks_acquired"`
	LocksReleased int64  `json:"locks_released"`
	LogLines      int    `json:"log_lines"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <commands-file>",
		Short: "Execute a command file concurrently",
		Long: `Execute every command in the file as its own task against a shared
table, then write the lock counters and the sorted final table.

Each line is "insert,<name>,<salary>", "delete,<name>,<ignored>" or
"search,<name>,<ignored>". An optional first line "threads,<N>,<ignored>"
is accepted and ignored. Malformed lines are skipped with a warning.

A delete whose name is absent waits until the name is inserted. If that
never happens the run blocks until interrupted (Ctrl-C), which exits 1.
With --workers, a waiting delete holds its slot, so a file whose inserts
are queued behind that many waiting deletes never finishes.

Settings are read from --config (YAML) and overridden by flags.

Examples:
  chash run commands.txt
  chash run commands.txt --out - --db ./chash.db
  chash run commands.txt --config chash.yaml --workers 8 --metrics-file chash.prom`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommands(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Output, "out", config.DefaultOutput, `audit log path ("-" for stdout)`)
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive the run to this SQLite database")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "maximum concurrent tasks (0 = one per command)")
	cmd.Flags().BoolVar(&opts.NormalizeNames, "nfc", false, "normalize names to Unicode NFC")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this .prom file")
	cmd.Flags().BoolVar(&opts.Sequential, "sequential", false, "run commands one at a time in file order")

	return cmd
}

func runCommands(opts *RunOptions, path string, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	// fail reports a command error in JSON mode before returning it.
	fail := func(code, message string, err error) error {
		if opts.Format == "json" {
			_ = formatter.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
		}
		return WrapExitError(ExitCommandError, message, err)
	}

	cfg, err := loadRunConfig(opts, cmd)
	if err != nil {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), configViolations(err))
		}
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	batch, err := command.ParseFile(path, command.Options{NormalizeNames: cfg.NormalizeNames})
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, os.ErrNotExist) {
			code = ErrCodeNotFound
		}
		return fail(code, "failed to read command file", err)
	}
	for _, skipped := range batch.Skipped {
		logger.Warn("skipping malformed line", "line", skipped.Line, "reason", skipped.Reason, "text", skipped.Text)
	}
	if batch.Header.Present && batch.Header.Threads != len(batch.Commands) {
		logger.Warn("threads header does not match command count",
			"header", batch.Header.Threads,
			"commands", len(batch.Commands),
		)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, interrupting waiting deletes", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	summary := RunSummary{
		Source:   path,
		Output:   cfg.Output,
		Database: cfg.Database,
		Commands: len(batch.Commands),
		Skipped:  len(batch.Skipped),
	}

	// Archive writes must outlive the run context so an interrupted run is
	// still recorded.
	archiveCtx := context.WithoutCancel(ctx)

	var sinks []auditlog.Sink
	var st *store.Store
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			return fail(ErrCodeArchive, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()

		runGen := opts.RunIDGenerator
		if runGen == nil {
			runGen = engine.UUIDv7Generator{}
		}
		summary.RunID = runGen.Generate()

		err = st.WriteRun(archiveCtx, store.Run{
			ID:        summary.RunID,
			StartedAt: time.Now().UTC(),
			Source:    path,
			Commands:  summary.Commands,
			Skipped:   summary.Skipped,
		})
		if err != nil {
			return fail(ErrCodeArchive, "failed to record run", err)
		}
		sinks = append(sinks, auditlog.NewArchiveSink(archiveCtx, st, summary.RunID, logger))
		logger.Debug("archiving run", "db", cfg.Database, "run_id", summary.RunID)
	}

	clock := opts.Clock
	if clock == nil {
		clock = engine.NewSystemClock()
	}
	log, err := auditlog.Open(cfg.Output, clock, sinks...)
	if err != nil {
		for _, s := range sinks {
			_ = s.Close()
		}
		return fail(ErrCodeWriteFailed, "failed to open audit log", err)
	}

	metrics := engine.NewMetrics()
	coord := engine.NewCoordinator(records.New(), log,
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	)
	exec := engine.NewExecutor(coord, engine.ExecutorOptions{
		Workers:    cfg.Workers,
		Sequential: opts.Sequential,
		Logger:     logger,
	})

	logger.Debug("run starting", "file", path, "commands", summary.Commands, "output", cfg.Output)
	report, runErr := exec.Execute(ctx, batch.Commands)
	coord.Close()

	summary.LogLines = log.Lines()
	if err := log.Close(); err != nil {
		return fail(ErrCodeWriteFailed, "failed to write audit log", err)
	}

	if runErr != nil {
		if opts.Format == "json" {
			_ = formatter.Error(ErrCodeInterrupted, runErr.Error(), summary)
		}
		if engine.IsInterrupted(runErr) {
			return WrapExitError(ExitFailure, "run interrupted", runErr)
		}
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	summary.Records = len(report.Snapshot)
	summary.LocksAcquired = report.Stats.Acquired
	summary.LocksReleased = report.Stats.Released

	if st != nil {
		if err := st.FinishRun(archiveCtx, summary.RunID, report.Stats.Acquired, report.Stats.Released); err != nil {
			return fail(ErrCodeArchive, "failed to finish run", err)
		}
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return fail(ErrCodeWriteFailed, "failed to write metrics file", err)
		}
		logger.Debug("metrics written", "path", cfg.MetricsFile)
	}

	// Keep stdout clean for the audit log when it is written there.
	if cfg.Output == "-" {
		formatter.Writer = cmd.ErrOrStderr()
	}
	if opts.Format == "json" {
		return formatter.SuccessForRun(summary.RunID, summary)
	}
	outputRunText(formatter.Writer, summary)
	return nil
}

func outputRunText(w io.Writer, s RunSummary) {
	fmt.Fprintf(w, "Ran %d command(s) from %s", s.Commands, s.Source)
	if s.Skipped > 0 {
		fmt.Fprintf(w, " (%d malformed line(s) skipped)", s.Skipped)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Locks: %d acquired, %d released\n", s.LocksAcquired, s.LocksReleased)
	fmt.Fprintf(w, "  Records: %d\n", s.Records)
	fmt.Fprintf(w, "  Audit log: %s (%d lines)\n", s.Output, s.LogLines)
	if s.RunID != "" {
		fmt.Fprintf(w, "  Archived as run %s in %s\n", s.RunID, s.Database)
	}
}
