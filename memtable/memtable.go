// Package memtable provides the in-memory write buffer of the LSM engine.
//
// A Memtable is a sorted key to value buffer with a capacity threshold. Several
// interchangeable backends are available; all of them satisfy the same
// functional contract and are exercised by one shared test suite. Node-based
// backends allocate their nodes from an index-addressed pool (integer handles
// into a flat slice) instead of owning pointers.
//
// Memtables are not safe for concurrent use; the coordinating engine
// serializes mutations and guards reads.
package memtable

import "fmt"

// Entry is a single key/value pair. A tombstone entry marks a deletion that is
// physically reclaimed during compaction.
type Entry struct {
	Key       string
	Value     string
	Tombstone bool
}

// entryOverhead approximates the bookkeeping cost of one entry beyond its
// key and value bytes.
const entryOverhead = 16

// SizeBytes returns the accounted size of the entry.
func (e Entry) SizeBytes() int64 {
	return int64(len(e.Key) + len(e.Value) + entryOverhead)
}

// Limits defines the capacity thresholds of a memtable. A memtable reports
// full as soon as either limit is reached; a zero limit is unlimited.
type Limits struct {
	// MaxBytes is the accounted size threshold in bytes.
	MaxBytes int64

	// MaxEntries is the entry count threshold.
	MaxEntries int
}

func (l Limits) reached(sizeBytes int64, entries int) bool {
	if l.MaxBytes > 0 && sizeBytes >= l.MaxBytes {
		return true
	}
	if l.MaxEntries > 0 && entries >= l.MaxEntries {
		return true
	}
	return false
}

// Memtable is the in-memory sorted buffer of pending writes.
type Memtable interface {
	// Put inserts or overwrites an entry and reports whether the memtable
	// has reached its capacity threshold.
	Put(e Entry) (full bool)

	// Get returns the entry stored under key. Tombstone entries are
	// returned as-is; interpreting them is the caller's concern.
	Get(key string) (Entry, bool)

	// IsEmpty reports whether the memtable holds no entries.
	IsEmpty() bool

	// Clear removes all entries and resets the size accounting.
	Clear()

	// SizeBytes returns the accounted size of all entries.
	SizeBytes() int64

	// EntryCount returns the number of entries.
	EntryCount() int

	// SnapshotAll returns a point-in-time copy of all entries in ascending
	// key order, suitable for flush serialization.
	SnapshotAll() []Entry
}

// Variant selects a memtable backend.
type Variant string

const (
	// VariantSorted keeps entries in a sorted slice with binary search.
	VariantSorted Variant = "sorted"
	// VariantSkipList uses an arena-indexed skip list.
	VariantSkipList Variant = "skiplist"
	// VariantLinkedList uses an arena-indexed sorted linked list.
	VariantLinkedList Variant = "linkedlist"
	// VariantTrie uses an arena-indexed byte trie.
	VariantTrie Variant = "trie"
	// VariantHashSkipList combines a hash map for point reads with a skip
	// list for ordering.
	VariantHashSkipList Variant = "hashskip"
)

// Variants lists every available backend.
func Variants() []Variant {
	return []Variant{
		VariantSorted,
		VariantSkipList,
		VariantLinkedList,
		VariantTrie,
		VariantHashSkipList,
	}
}

// New constructs a memtable of the given variant.
func New(variant Variant, limits Limits) (Memtable, error) {
	switch variant {
	case VariantSorted:
		return newSorted(limits), nil
	case VariantSkipList:
		return newSkipList(limits), nil
	case VariantLinkedList:
		return newLinkedList(limits), nil
	case VariantTrie:
		return newTrie(limits), nil
	case VariantHashSkipList:
		return newHashSkipList(limits), nil
	default:
		return nil, fmt.Errorf("unknown memtable variant: %q", variant)
	}
}
