package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/chash/internal/command"
)

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	// Workers bounds how many command goroutines may run at once.
	// Zero keeps the default of one goroutine per command, all launched
	// before any is joined.
	//
	// A bound can starve: if every slot holds a delete waiting for an
	// insert that has not been launched yet, the run blocks until cancelled.
	Workers int

	// Sequential runs commands one at a time in input order. Used by the
	// conformance harness to produce reproducible logs. A delete whose
	// insert comes later in the input blocks until ctx is cancelled.
	Sequential bool

	Logger *slog.Logger
}

// Executor turns parsed commands into concurrent tasks against a Coordinator.
type Executor struct {
	coord  *Coordinator
	opts   ExecutorOptions
	logger *slog.Logger
}

// NewExecutor creates an executor for coord.
func NewExecutor(coord *Coordinator, opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{coord: coord, opts: opts, logger: logger}
}

// Run executes every command and waits for all of them.
//
// Returns the first task error. The only task error is an interrupted
// delete, which happens when ctx is cancelled while a delete is waiting.
func (e *Executor) Run(ctx context.Context, cmds []command.Command) error {
	e.logger.Debug("executor starting",
		"commands", len(cmds),
		"workers", e.opts.Workers,
		"sequential", e.opts.Sequential,
	)

	if e.opts.Sequential {
		for i, cmd := range cmds {
			if err := e.execute(ctx, taskID(i, cmd), cmd); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	if e.opts.Workers > 0 {
		g.SetLimit(e.opts.Workers)
	}
	for i, cmd := range cmds {
		i, cmd := i, cmd
		g.Go(func() error {
			return e.execute(ctx, taskID(i, cmd), cmd)
		})
	}
	return g.Wait()
}

// Execute runs cmds and, if every task completed, writes the final report.
func (e *Executor) Execute(ctx context.Context, cmds []command.Command) (Report, error) {
	if err := e.Run(ctx, cmds); err != nil {
		return Report{}, err
	}
	report := e.coord.Report()
	e.logger.Debug("executor finished",
		"records", len(report.Snapshot),
		"locks_acquired", report.Stats.Acquired,
		"locks_released", report.Stats.Released,
	)
	return report, nil
}

func (e *Executor) execute(ctx context.Context, task int, cmd command.Command) error {
	switch cmd.Kind {
	case command.KindInsert:
		e.coord.Insert(task, cmd.Name, cmd.Value)
	case command.KindSearch:
		e.coord.Search(task, cmd.Name)
	case command.KindDelete:
		if _, err := e.coord.Delete(ctx, task, cmd.Name); err != nil {
			return err
		}
	default:
		// The parser never produces other kinds.
		return fmt.Errorf("task %d: unknown command kind %v", task, cmd.Kind)
	}
	return nil
}

// taskID prefers the source line so archived entries point back at the input.
func taskID(i int, cmd command.Command) int {
	if cmd.Line > 0 {
		return cmd.Line
	}
	return i + 1
}
