package records

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chash/internal/hasher"
)

func TestUpsert_InsertThenUpdate(t *testing.T) {
	s := New()

	rec, outcome := s.Upsert("alice", 100)
	assert.Equal(t, Inserted, outcome)
	assert.Equal(t, Record{Hash: 1031422857, Name: "alice", Salary: 100}, rec)

	rec, outcome = s.Upsert("alice", 250)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, int32(250), rec.Salary)

	assert.Equal(t, 1, s.Len(), "update must not create a second record")
	got, ok := s.Find("alice")
	require.True(t, ok)
	assert.Equal(t, int32(250), got.Salary)
	assert.Equal(t, hasher.Sum("alice"), got.Hash)
}

func TestFind_Absent(t *testing.T) {
	s := New()
	s.Upsert("alice", 1)

	_, ok := s.Find("bob")
	assert.False(t, ok)
	_, ok = s.Find("Alice")
	assert.False(t, ok, "names compare exactly")
}

func TestRemove(t *testing.T) {
	s := New()
	s.Upsert("a", 1)
	s.Upsert("b", 2)

	rec, ok := s.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "a", rec.Name)
	assert.Equal(t, int32(1), rec.Salary)

	_, ok = s.Remove("a")
	assert.False(t, ok, "second remove finds nothing")

	_, ok = s.Find("a")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len())
}

func TestSnapshot_SortedByHash(t *testing.T) {
	s := New()
	for i := 0; i < 200; i++ {
		s.Upsert(fmt.Sprintf("employee-%03d", i), int32(i))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 200)
	assert.True(t, sort.SliceIsSorted(snap, func(i, j int) bool {
		return snap[i].Hash < snap[j].Hash
	}))
}

func TestSnapshot_DoesNotMutate(t *testing.T) {
	s := New()
	s.Upsert("a", 1)
	s.Upsert("b", 2)

	snap := s.Snapshot()
	snap[0].Salary = 999

	for _, name := range []string{"a", "b"} {
		rec, ok := s.Find(name)
		require.True(t, ok)
		assert.NotEqual(t, int32(999), rec.Salary)
	}
	assert.Equal(t, s.Snapshot(), s.Snapshot(), "repeated snapshots are identical")
}

func TestSnapshot_ConcreteOrder(t *testing.T) {
	s := New()
	s.Upsert("a", 1) // 3392050242
	s.Upsert("b", 2) // 14385563
	s.Upsert("alice", 3)

	snap := s.Snapshot()
	names := make([]string, len(snap))
	for i, r := range snap {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"b", "alice", "a"}, names)
}

func TestEqualHashTieBreak(t *testing.T) {
	// Records with the same hash stay distinct and order by name.
	s := &Store{index: newIndex()}
	s.index.Set(Record{Hash: 7, Name: "zed", Salary: 1})
	s.index.Set(Record{Hash: 7, Name: "amy", Salary: 2})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "amy", snap[0].Name)
	assert.Equal(t, "zed", snap[1].Name)
}

func TestReset(t *testing.T) {
	s := New()
	s.Upsert("a", 1)
	s.Reset()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Snapshot())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "updated", Updated.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
