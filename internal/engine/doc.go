// Package engine coordinates concurrent access to the shared record store.
//
// ARCHITECTURE:
//
// One Lock, Two Modes:
// A single sync.RWMutex guards the record store. Inserts and deletes take it
// exclusively; searches and the final report take it shared. Inserts and
// deletes are therefore totally ordered with respect to each other, and no
// search ever observes a half-applied mutation.
//
// Blocking Delete:
// A delete for an absent name does not fail. It waits on a sync.Cond bound to
// the exclusive side of the same mutex, so releasing the lock and starting to
// wait is one atomic step. Every insert broadcasts after it releases the lock.
// The waiter re-checks the store on every wake-up, which tolerates spurious
// wake-ups.
//
// Audit Trail:
// Every lock transition and operation outcome is appended to the audit log
// while the emitting task still holds the lock. Lines of one critical section
// are never interleaved with the lines of a conflicting one.
//
// Fan-out:
// The Executor runs one goroutine per command. Ordering between unrelated
// commands is whatever the scheduler picks; only the lock serializes.
//
// CRITICAL PATTERNS:
//
// Counter Symmetry:
// locks_acquired and locks_released move exactly once per operation, under
// the lock. They are equal whenever no task is inside a critical section.
//
// Interruptible Wait:
// A waiting delete wakes when its context is cancelled, releases the lock and
// returns ErrInterrupted. This is a shutdown path, not a timeout policy.
package engine
