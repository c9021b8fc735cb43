package memtable

import (
	"math/rand/v2"
)

const (
	skipMaxHeight = 12
	skipProb      = 0.25
)

// skipNode is a skip list node addressed by its index in the arena.
// forward[i] == 0 terminates level i; index 0 is the head sentinel and can
// never be a successor.
type skipNode struct {
	entry   Entry
	forward [skipMaxHeight]int32
}

// skipList is an arena-indexed skip list. Nodes live in a flat slice and
// reference each other through integer handles, so the structure carries no
// owning pointers and resets in O(1).
type skipList struct {
	arena     []skipNode
	height    int
	count     int
	sizeBytes int64
	limits    Limits
}

func newSkipList(limits Limits) *skipList {
	l := &skipList{limits: limits}
	l.arena = append(l.arena, skipNode{}) // head sentinel at index 0
	l.height = 1
	return l
}

// findGreaterOrEqual walks the list towards key. When prev is non-nil it is
// filled with the rightmost node before key on every level.
func (l *skipList) findGreaterOrEqual(key string, prev *[skipMaxHeight]int32) int32 {
	node := int32(0)
	for i := l.height - 1; i >= 0; i-- {
		for next := l.arena[node].forward[i]; next != 0 && l.arena[next].entry.Key < key; next = l.arena[node].forward[i] {
			node = next
		}
		if prev != nil {
			prev[i] = node
		}
	}
	return l.arena[node].forward[0]
}

func (l *skipList) randomHeight() int {
	h := 1
	for h < skipMaxHeight && rand.Float32() < skipProb {
		h++
	}
	return h
}

// put inserts or overwrites and returns the handle of the node holding key.
func (l *skipList) put(e Entry) int32 {
	var prev [skipMaxHeight]int32
	node := l.findGreaterOrEqual(e.Key, &prev)

	if node != 0 && l.arena[node].entry.Key == e.Key {
		l.sizeBytes += e.SizeBytes() - l.arena[node].entry.SizeBytes()
		l.arena[node].entry = e
		return node
	}

	height := l.randomHeight()
	for i := l.height; i < height; i++ {
		prev[i] = 0
	}
	if height > l.height {
		l.height = height
	}

	idx := int32(len(l.arena))
	l.arena = append(l.arena, skipNode{entry: e})
	for i := 0; i < height; i++ {
		l.arena[idx].forward[i] = l.arena[prev[i]].forward[i]
		l.arena[prev[i]].forward[i] = idx
	}

	l.count++
	l.sizeBytes += e.SizeBytes()
	return idx
}

func (l *skipList) get(key string) (Entry, bool) {
	node := l.findGreaterOrEqual(key, nil)
	if node != 0 && l.arena[node].entry.Key == key {
		return l.arena[node].entry, true
	}
	return Entry{}, false
}

func (l *skipList) clear() {
	l.arena = l.arena[:1]
	l.arena[0] = skipNode{}
	l.height = 1
	l.count = 0
	l.sizeBytes = 0
}

func (l *skipList) snapshotAll() []Entry {
	out := make([]Entry, 0, l.count)
	for node := l.arena[0].forward[0]; node != 0; node = l.arena[node].forward[0] {
		out = append(out, l.arena[node].entry)
	}
	return out
}

// Memtable interface.

func (l *skipList) Put(e Entry) bool {
	l.put(e)
	return l.limits.reached(l.sizeBytes, l.count)
}

func (l *skipList) Get(key string) (Entry, bool) { return l.get(key) }
func (l *skipList) IsEmpty() bool                { return l.count == 0 }
func (l *skipList) Clear()                       { l.clear() }
func (l *skipList) SizeBytes() int64             { return l.sizeBytes }
func (l *skipList) EntryCount() int              { return l.count }
func (l *skipList) SnapshotAll() []Entry         { return l.snapshotAll() }
