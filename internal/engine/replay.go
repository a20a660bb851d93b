package engine

import (
	"fmt"

	"github.com/roach88/chash/internal/auditlog"
	"github.com/roach88/chash/internal/records"
	"github.com/roach88/chash/internal/store"
)

// Replay rebuilds the final record set of a run from its archived entries.
//
// Entries must be in seq order, as returned by store.ReadEntries. Only
// insert and delete entries change state; lock transitions, searches and
// waits are checked for validity and skipped. Replaying the same entries
// always yields the same snapshot, so comparing it with the archived
// snapshot verifies the archive is self-consistent.
func Replay(entries []store.Entry) ([]records.Record, error) {
	st := records.New()
	var last int64

	for _, e := range entries {
		// Sanity check! Are the sequence numbers in increasing order?
		if e.Seq <= last {
			return nil, fmt.Errorf("replay: entries out of sequence, seq %d after %d", e.Seq, last)
		}
		last = e.Seq

		ev := auditlog.Event(e.Event)
		if !ev.Valid() {
			return nil, fmt.Errorf("replay: seq %d: unknown event %q", e.Seq, e.Event)
		}

		switch ev {
		case auditlog.EventInsert:
			st.Upsert(e.Name, e.Value)
		case auditlog.EventDelete:
			if _, ok := st.Remove(e.Name); !ok {
				return nil, fmt.Errorf("replay: seq %d: delete of absent record %q", e.Seq, e.Name)
			}
		}
	}

	return st.Snapshot(), nil
}
