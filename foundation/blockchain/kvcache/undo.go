package kvcache

import (
	"sort"
	"sync"
)

// UndoEntry is the previous value of one key before a mutation. Both key
// and value are in their store encoding.
type UndoEntry struct {
	Key   []byte
	Value []byte
}

// UndoLog collects undo entries for a unit of work, grouped by table.
// Entries are appended in mutation order and replayed in reverse.
type UndoLog struct {
	mu      sync.Mutex
	entries map[Prefix][]UndoEntry
	count   int
}

// NewUndoLog constructs an empty undo log.
func NewUndoLog() *UndoLog {
	return &UndoLog{
		entries: make(map[Prefix][]UndoEntry),
	}
}

// Add appends the previous value of the key in the specified table.
func (u *UndoLog) Add(prefix Prefix, key []byte, value []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.entries[prefix] = append(u.entries[prefix], UndoEntry{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	u.count++
}

// Entries returns a copy of the entries recorded for the table, in the
// order they were recorded.
func (u *UndoLog) Entries(prefix Prefix) []UndoEntry {
	u.mu.Lock()
	defer u.mu.Unlock()

	entries := make([]UndoEntry, len(u.entries[prefix]))
	copy(entries, u.entries[prefix])

	return entries
}

// Prefixes returns the tables that have entries, in ascending order.
func (u *UndoLog) Prefixes() []Prefix {
	u.mu.Lock()
	defer u.mu.Unlock()

	prefixes := make([]Prefix, 0, len(u.entries))
	for p := range u.entries {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i] < prefixes[j] })

	return prefixes
}

// Len returns the total number of entries.
func (u *UndoLog) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.count
}
