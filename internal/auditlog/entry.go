// Package auditlog records every lock transition and operation outcome.
//
// Entries must be appended while the emitting task holds the coordinator's
// lock, so the lines of one critical section are never interleaved with the
// lines of a conflicting one. The log stamps each entry under its own mutex,
// which keeps file order and timestamp order in agreement when several
// shared-mode holders append at once.
package auditlog

import "fmt"

// Event identifies what an entry records.
type Event string

const (
	EventWriteAcquired Event = "write_acquired"
	EventWriteReleased Event = "write_released"
	EventReadAcquired  Event = "read_acquired"
	EventReadReleased  Event = "read_released"
	EventInsert        Event = "insert"
	EventSearchHit     Event = "search_hit"
	EventSearchMiss    Event = "search_miss"
	EventWaiting       Event = "waiting"
	EventAwakened      Event = "awakened"
	EventDelete        Event = "delete"
)

// Entry is one audit event.
// Seq and Micros are assigned by Log.Append.
type Entry struct {
	Seq    int64
	Micros uint64
	Task   int
	Event  Event
	Hash   uint32
	Name   string
	Value  int32
}

// Text renders the entry without its timestamp.
func (e Entry) Text() string {
	switch e.Event {
	case EventWriteAcquired:
		return "WRITE LOCK ACQUIRED"
	case EventWriteReleased:
		return "WRITE LOCK RELEASED"
	case EventReadAcquired:
		return "READ LOCK ACQUIRED"
	case EventReadReleased:
		return "READ LOCK RELEASED"
	case EventInsert:
		return fmt.Sprintf("INSERT,%d,%s,%d", e.Hash, e.Name, e.Value)
	case EventSearchHit:
		return fmt.Sprintf("SEARCH: %d,%s,%d", e.Hash, e.Name, e.Value)
	case EventSearchMiss:
		return "SEARCH: NOT FOUND"
	case EventWaiting:
		return "WAITING ON INSERTS"
	case EventAwakened:
		return "DELETE AWAKENED"
	case EventDelete:
		return fmt.Sprintf("DELETE,%s", e.Name)
	}
	return string(e.Event)
}

// Line renders the entry as it appears in the text log.
func (e Entry) Line() string {
	return fmt.Sprintf("%d: %s", e.Micros, e.Text())
}

// Valid reports whether ev is a known event.
func (ev Event) Valid() bool {
	switch ev {
	case EventWriteAcquired, EventWriteReleased, EventReadAcquired, EventReadReleased,
		EventInsert, EventSearchHit, EventSearchMiss, EventWaiting, EventAwakened, EventDelete:
		return true
	}
	return false
}
