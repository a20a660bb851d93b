package store

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID is not in the archive.
var ErrRunNotFound = errors.New("run not found")

// Run describes one archived execution of a command file.
type Run struct {
	ID            string
	StartedAt     time.Time
	Source        string
	Commands      int
	Skipped       int
	Finished      bool
	LocksAcquired int64
	LocksReleased int64
}

// Entry is one archived audit log entry.
// Event holds the auditlog event name.
type Entry struct {
	Seq    int64
	Micros uint64
	Task   int
	Event  string
	Hash   uint32
	Name   string
	Value  int32
}

// EntryFilter narrows ReadEntries. Zero values match everything.
type EntryFilter struct {
	Name string
	Task int
}
