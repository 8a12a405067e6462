// Package lsm implements the LSM-tree key/value store: an in-memory
// mutable table, a write-ahead log for durability, and a tiered collection
// of immutable on-disk sorted tables with background compaction.
package lsm

import "sort"

// entry is one logical record held in a MemTable. A Tombstone entry
// represents a deletion and is distinguished from absence; the top-level
// LSMTree collapses Tombstone into "not found" at its own boundary.
type entry struct {
	Key       string
	Value     []byte
	Tombstone bool
}

// MemTable is a dense, ordered, in-memory mapping of key to value, bounded
// at MaxSize entries. O(log n) locate via binary search, O(n) insert into
// the backing slice — acceptable at the spec's MaxSize=1000.
type MemTable struct {
	entries []entry
	maxSize int
}

// NewMemTable creates an empty MemTable bounded at maxSize entries.
func NewMemTable(maxSize int) *MemTable {
	return &MemTable{maxSize: maxSize}
}

func (m *MemTable) find(key string) (int, bool) {
	idx := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Key >= key })
	if idx < len(m.entries) && m.entries[idx].Key == key {
		return idx, true
	}
	return idx, false
}

// Put inserts or overwrites key with value, maintaining ascending order.
func (m *MemTable) Put(key string, value []byte) {
	m.set(key, value, false)
}

// Delete records a tombstone for key, maintaining ascending order.
func (m *MemTable) Delete(key string) {
	m.set(key, nil, true)
}

func (m *MemTable) set(key string, value []byte, tombstone bool) {
	idx, found := m.find(key)
	e := entry{Key: key, Value: value, Tombstone: tombstone}
	if found {
		m.entries[idx] = e
		return
	}
	m.entries = append(m.entries, entry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = e
}

// Get returns (value, tombstone, found).
func (m *MemTable) Get(key string) ([]byte, bool, bool) {
	idx, found := m.find(key)
	if !found {
		return nil, false, false
	}
	e := m.entries[idx]
	return e.Value, e.Tombstone, true
}

// RangeScan returns every entry with lo <= key <= hi in ascending order,
// tombstones included — callers filter as appropriate for their layer.
func (m *MemTable) RangeScan(lo, hi string) []entry {
	start := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Key >= lo })
	var out []entry
	for i := start; i < len(m.entries); i++ {
		if m.entries[i].Key > hi {
			break
		}
		out = append(out, m.entries[i])
	}
	return out
}

// All returns every entry in ascending key order, used by flush.
func (m *MemTable) All() []entry {
	return m.entries
}

// IsFull reports whether the MemTable has reached its entry-count bound.
func (m *MemTable) IsFull() bool {
	return len(m.entries) >= m.maxSize
}

// Len returns the current entry count.
func (m *MemTable) Len() int {
	return len(m.entries)
}
