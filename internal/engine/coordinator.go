package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/records"
)

// ReportTask is the task id used for entries emitted by the final report.
const ReportTask = 0

// Stats holds the lock counters.
type Stats struct {
	Acquired int64
	Released int64
}

// Report is the result of the final shared-lock read.
type Report struct {
	Stats    Stats
	Snapshot []records.Record
}

// Coordinator serializes access to a records.Store and implements the
// blocking-delete protocol.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	mu      sync.RWMutex
	present *sync.Cond // bound to mu's exclusive side; broadcast after inserts

	records *records.Store
	log     *auditlog.Log
	metrics *Metrics
	logger  *slog.Logger

	// statsMu orders counter updates made by concurrent shared-mode holders.
	// Counters are only touched while mu is held in some mode.
	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the diagnostic logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator wraps st. Every operation is recorded in log.
func NewCoordinator(st *records.Store, log *auditlog.Log, opts ...Option) *Coordinator {
	c := &Coordinator{
		records: st,
		log:     log,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	c.present = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	return c
}

// Metrics returns the coordinator's collectors.
func (c *Coordinator) Metrics() *Metrics {
	return c.metrics
}

// Insert adds name or updates its salary, then wakes any waiting deletes.
func (c *Coordinator) Insert(task int, name string, value int32) (records.Record, records.Outcome) {
	c.lockExclusive(task)
	rec, outcome := c.records.Upsert(name, value)
	c.log.Append(auditlog.Entry{
		Task:  task,
		Event: auditlog.EventInsert,
		Hash:  rec.Hash,
		Name:  name,
		Value: value,
	})
	c.metrics.records.Set(float64(c.records.Len()))
	c.unlockExclusive(task)

	c.present.Broadcast()
	c.metrics.observeOp("insert", outcome.String())
	return rec, outcome
}

// Search looks name up under the shared lock.
func (c *Coordinator) Search(task int, name string) (records.Record, bool) {
	c.lockShared(task)
	rec, ok := c.records.Find(name)
	if ok {
		c.log.Append(auditlog.Entry{
			Task:  task,
			Event: auditlog.EventSearchHit,
			Hash:  rec.Hash,
			Name:  rec.Name,
			Value: rec.Salary,
		})
	} else {
		c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventSearchMiss, Name: name})
	}
	c.unlockShared(task)

	if ok {
		c.metrics.observeOp("search", "found")
	} else {
		c.metrics.observeOp("search", "not_found")
	}
	return rec, ok
}

// Delete removes name, waiting for it to be inserted if it is absent.
//
// There is no timeout. The wait ends only when a matching insert happens or
// ctx is cancelled; in the latter case the lock is released, the counters stay
// balanced and an *InterruptedError is returned.
func (c *Coordinator) Delete(ctx context.Context, task int, name string) (records.Record, error) {
	c.lockExclusive(task)

	rec, ok := c.records.Find(name)
	if !ok {
		// Cancellation must reach a goroutine parked in Wait. The callback
		// takes the lock before broadcasting, so it cannot slip in between
		// our ctx check and the start of Wait.
		stop := context.AfterFunc(ctx, func() {
			c.mu.Lock()
			c.present.Broadcast()
			c.mu.Unlock()
		})
		defer stop()

		for !ok {
			if ctx.Err() != nil {
				c.unlockExclusive(task)
				c.metrics.observeOp("delete", "interrupted")
				c.logger.Warn("delete interrupted", "task", task, "name", name)
				return records.Record{}, &InterruptedError{Task: task, Name: name, Cause: context.Cause(ctx)}
			}

			c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventWaiting, Name: name})
			c.metrics.deleteWaits.Inc()
			c.logger.Debug("delete waiting", "task", task, "name", name)

			c.present.Wait()

			c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventAwakened, Name: name})
			rec, ok = c.records.Find(name)
		}
	}

	c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventDelete, Hash: rec.Hash, Name: name})
	c.records.Remove(name)
	c.metrics.records.Set(float64(c.records.Len()))
	c.unlockExclusive(task)

	c.metrics.observeOp("delete", "deleted")
	return rec, nil
}

// Stats returns the current lock counters.
func (c *Coordinator) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

// Report writes the final summary and sorted snapshot to the audit log.
// It must be called only after every command task has returned.
//
// The summary counters cover command tasks only; the report's own shared
// hold is logged but not counted.
func (c *Coordinator) Report() Report {
	stats := c.Stats()
	c.log.Raw("Finished all threads.")
	c.log.Raw(fmt.Sprintf("Number of lock acquisitions: %d", stats.Acquired))
	c.log.Raw(fmt.Sprintf("Number of lock releases: %d", stats.Released))

	c.mu.RLock()
	c.log.Append(auditlog.Entry{Task: ReportTask, Event: auditlog.EventReadAcquired})
	snap := c.records.Snapshot()
	c.log.Snapshot(snap)
	c.log.Append(auditlog.Entry{Task: ReportTask, Event: auditlog.EventReadReleased})
	c.mu.RUnlock()

	return Report{Stats: stats, Snapshot: snap}
}

// Close releases every record. Call after Report.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records.Reset()
	c.metrics.records.Set(0)
}

func (c *Coordinator) lockExclusive(task int) {
	start := time.Now()
	c.mu.Lock()
	c.metrics.observeAcquire(modeWrite, time.Since(start))
	c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventWriteAcquired})
	c.countAcquire()
}

func (c *Coordinator) unlockExclusive(task int) {
	c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventWriteReleased})
	c.countRelease()
	c.metrics.observeRelease(modeWrite)
	c.mu.Unlock()
}

func (c *Coordinator) lockShared(task int) {
	start := time.Now()
	c.mu.RLock()
	c.metrics.observeAcquire(modeRead, time.Since(start))
	c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventReadAcquired})
	c.countAcquire()
}

func (c *Coordinator) unlockShared(task int) {
	c.log.Append(auditlog.Entry{Task: task, Event: auditlog.EventReadReleased})
	c.countRelease()
	c.metrics.observeRelease(modeRead)
	c.mu.RUnlock()
}

func (c *Coordinator) countAcquire() {
	c.statsMu.Lock()
	c.stats.Acquired++
	c.statsMu.Unlock()
}

func (c *Coordinator) countRelease() {
	c.statsMu.Lock()
	c.stats.Released++
	c.statsMu.Unlock()
}
