// Package symtab implements C3 SymbolResolver (spec.md §4.3): the
// open-addressed global symbol table and the two-phase collect/resolve
// pass over every parsed object.
//
// The hash table itself is grounded on the teacher's hashmap.go
// (Vibe67HashMap): FNV-1a hashing and a 0.75 load-factor resize trigger
// carry over directly. Vibe67HashMap chains on collision; spec.md §4.3
// requires linear probing instead, so the probing/resize loop here is
// rewritten against that constraint rather than copied.
package symtab

import (
	"hash/fnv"

	"github.com/xyproto/soxlink/internal/object"
)

// Entry is the winning definition recorded in the global table for one name.
type Entry struct {
	Symbol         *object.Symbol
	DefiningObject int
}

type slot struct {
	key      string
	value    Entry
	occupied bool
	deleted  bool
}

// Table is an open-addressed, linearly-probed hash table keyed by symbol
// name, matching spec.md §4.3's "hash-indexed global symbol table".
type Table struct {
	slots []slot
	count int
}

const initialSlots = 16

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{slots: make([]slot, initialSlots)}
}

func hashName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

func (t *Table) probe(name string) int {
	n := len(t.slots)
	idx := int(hashName(name) % uint64(n))
	for i := 0; i < n; i++ {
		pos := (idx + i) % n
		s := &t.slots[pos]
		if !s.occupied && !s.deleted {
			return pos
		}
		if s.occupied && s.key == name {
			return pos
		}
	}
	// Table is full of tombstones/occupied slots with no match; the
	// caller always resizes before this can happen in practice.
	return -1
}

// Get returns the entry for name, if present.
func (t *Table) Get(name string) (Entry, bool) {
	pos := t.probe(name)
	if pos < 0 || !t.slots[pos].occupied {
		return Entry{}, false
	}
	return t.slots[pos].value, true
}

// Set inserts or overwrites the entry for name.
func (t *Table) Set(name string, e Entry) {
	if float64(t.count+1)/float64(len(t.slots)) > 0.75 {
		t.grow()
	}
	pos := t.probe(name)
	s := &t.slots[pos]
	if !s.occupied {
		t.count++
	}
	s.key = name
	s.value = e
	s.occupied = true
	s.deleted = false
}

func (t *Table) grow() {
	old := t.slots
	t.slots = make([]slot, len(old)*2)
	t.count = 0
	for _, s := range old {
		if s.occupied {
			t.Set(s.key, s.value)
		}
	}
}

// Len returns the number of entries in the table.
func (t *Table) Len() int { return t.count }

// Range calls fn for every entry in the table, in slot order (not
// insertion order — callers that need determinism sort by name).
func (t *Table) Range(fn func(name string, e Entry)) {
	for _, s := range t.slots {
		if s.occupied {
			fn(s.key, s.value)
		}
	}
}
