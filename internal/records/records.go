// Package records holds the key/value records shared by all command tasks.
//
// Store is not safe for concurrent use on its own. Every method assumes the
// caller holds the coordinator's lock: exclusive for Upsert, Remove and
// Reset, shared or exclusive for Find, Snapshot and Len.
package records

import (
	"github.com/tidwall/btree"

	"github.com/roach88/chash/internal/hasher"
)

// Record is one name/salary entry with its cached hash.
type Record struct {
	Hash   uint32
	Name   string
	Salary int32
}

// Outcome reports what Upsert did.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// Store is an ordered collection of records keyed by (hash, name).
//
// The hash is the primary sort key and a fast pre-filter; the exact name
// decides equality. Callers only ever see copies of records.
type Store struct {
	index *btree.BTreeG[Record]
}

func byHashThenName(a, b Record) bool {
	if a.Hash != b.Hash {
		return a.Hash < b.Hash
	}
	return a.Name < b.Name
}

// New returns an empty store.
func New() *Store {
	return &Store{index: newIndex()}
}

func newIndex() *btree.BTreeG[Record] {
	return btree.NewBTreeGOptions(byHashThenName, btree.Options{NoLocks: true})
}

// Upsert inserts name with salary, or replaces the salary of the existing
// record with that name. The hash of an existing record is never changed.
func (s *Store) Upsert(name string, salary int32) (Record, Outcome) {
	rec := Record{Hash: hasher.Sum(name), Name: name, Salary: salary}
	if _, replaced := s.index.Set(rec); replaced {
		return rec, Updated
	}
	return rec, Inserted
}

// Find looks up name.
func (s *Store) Find(name string) (Record, bool) {
	return s.index.Get(Record{Hash: hasher.Sum(name), Name: name})
}

// Remove unlinks name and returns the removed record.
func (s *Store) Remove(name string) (Record, bool) {
	return s.index.Delete(Record{Hash: hasher.Sum(name), Name: name})
}

// Snapshot returns all records ascending by hash. Records sharing a hash are
// ordered by name. The live structure is not modified.
func (s *Store) Snapshot() []Record {
	out := make([]Record, 0, s.index.Len())
	s.index.Scan(func(r Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return s.index.Len()
}

// Reset releases every record.
func (s *Store) Reset() {
	s.index = newIndex()
}
