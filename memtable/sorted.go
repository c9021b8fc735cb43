package memtable

import (
	"slices"
	"strings"
)

// sorted keeps entries in a slice ordered by key. Lookups are binary
// searches; inserts shift the tail. Cheap for small capacities and for
// flush-heavy workloads where the sorted snapshot is the hot path.
type sorted struct {
	entries   []Entry
	sizeBytes int64
	limits    Limits
}

func newSorted(limits Limits) *sorted {
	return &sorted{limits: limits}
}

func (s *sorted) search(key string) (int, bool) {
	return slices.BinarySearchFunc(s.entries, key, func(e Entry, k string) int {
		return strings.Compare(e.Key, k)
	})
}

func (s *sorted) Put(e Entry) bool {
	i, found := s.search(e.Key)
	if found {
		s.sizeBytes += e.SizeBytes() - s.entries[i].SizeBytes()
		s.entries[i] = e
	} else {
		s.entries = slices.Insert(s.entries, i, e)
		s.sizeBytes += e.SizeBytes()
	}
	return s.limits.reached(s.sizeBytes, len(s.entries))
}

func (s *sorted) Get(key string) (Entry, bool) {
	i, found := s.search(key)
	if !found {
		return Entry{}, false
	}
	return s.entries[i], true
}

func (s *sorted) IsEmpty() bool { return len(s.entries) == 0 }

func (s *sorted) Clear() {
	s.entries = s.entries[:0]
	s.sizeBytes = 0
}

func (s *sorted) SizeBytes() int64 { return s.sizeBytes }

func (s *sorted) EntryCount() int { return len(s.entries) }

func (s *sorted) SnapshotAll() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
