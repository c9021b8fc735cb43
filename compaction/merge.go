package compaction

import (
	"container/heap"

	"github.com/hupe1980/lsmkv/memtable"
)

// MergeIterator performs a k-way merge over sorted entry streams. Streams
// must be passed oldest first; when the same key appears in several streams
// the entry from the newest stream wins and the older duplicates are
// silently dropped. Each step costs O(log K) for K streams.
type MergeIterator struct {
	streams [][]memtable.Entry
	heads   mergeHeap
	started bool
	lastKey string
	emitted bool
}

// NewMergeIterator creates an iterator over the given streams. Each stream
// must be sorted ascending by key with unique keys; streams[0] is the
// oldest source, streams[len-1] the newest.
func NewMergeIterator(streams [][]memtable.Entry) *MergeIterator {
	it := &MergeIterator{streams: streams}

	for i, s := range streams {
		if len(s) > 0 {
			it.heads = append(it.heads, mergeHead{key: s[0].Key, stream: i})
		}
	}
	heap.Init(&it.heads)

	return it
}

// Next returns the next merged entry in ascending key order, or false when
// all streams are exhausted.
func (it *MergeIterator) Next() (memtable.Entry, bool) {
	for it.heads.Len() > 0 {
		head := it.heads[0]
		entry := it.advance(head.stream)

		if it.emitted && entry.Key == it.lastKey {
			// An older duplicate of the key just emitted.
			continue
		}

		it.lastKey = entry.Key
		it.emitted = true

		return entry, true
	}

	return memtable.Entry{}, false
}

// advance pops the current entry of the given stream and pushes its
// successor onto the heap.
func (it *MergeIterator) advance(stream int) memtable.Entry {
	entry := it.streams[stream][0]
	it.streams[stream] = it.streams[stream][1:]

	if len(it.streams[stream]) > 0 {
		it.heads[0] = mergeHead{key: it.streams[stream][0].Key, stream: stream}
		heap.Fix(&it.heads, 0)
	} else {
		heap.Pop(&it.heads)
	}

	return entry
}

// Drain runs the merge to completion, optionally dropping tombstones. Used
// when the full merged run is needed at once, e.g. to build a segment.
func (it *MergeIterator) Drain(dropTombstones bool) []memtable.Entry {
	var out []memtable.Entry
	for {
		entry, ok := it.Next()
		if !ok {
			return out
		}
		if dropTombstones && entry.Tombstone {
			continue
		}
		out = append(out, entry)
	}
}

type mergeHead struct {
	key    string
	stream int
}

type mergeHeap []mergeHead

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if h[i].key != h[j].key {
		return h[i].key < h[j].key
	}
	// Newer stream first, so the winning value surfaces before its older
	// duplicates.
	return h[i].stream > h[j].stream
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(mergeHead)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]

	return x
}
