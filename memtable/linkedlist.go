package memtable

// listNode is a singly-linked node addressed by its index in the arena.
// next == 0 terminates the list; index 0 is the head sentinel.
type listNode struct {
	entry Entry
	next  int32
}

// linkedList is an arena-indexed sorted singly-linked list. Inserts are
// linear scans, which keeps the implementation minimal; it trades insert
// speed for the lowest per-entry overhead of all backends.
type linkedList struct {
	arena     []listNode
	count     int
	sizeBytes int64
	limits    Limits
}

func newLinkedList(limits Limits) *linkedList {
	l := &linkedList{limits: limits}
	l.arena = append(l.arena, listNode{}) // head sentinel at index 0
	return l
}

func (l *linkedList) Put(e Entry) bool {
	prev := int32(0)
	for next := l.arena[prev].next; next != 0; next = l.arena[prev].next {
		if l.arena[next].entry.Key >= e.Key {
			break
		}
		prev = next
	}

	next := l.arena[prev].next
	if next != 0 && l.arena[next].entry.Key == e.Key {
		l.sizeBytes += e.SizeBytes() - l.arena[next].entry.SizeBytes()
		l.arena[next].entry = e
	} else {
		idx := int32(len(l.arena))
		l.arena = append(l.arena, listNode{entry: e, next: next})
		l.arena[prev].next = idx
		l.count++
		l.sizeBytes += e.SizeBytes()
	}
	return l.limits.reached(l.sizeBytes, l.count)
}

func (l *linkedList) Get(key string) (Entry, bool) {
	for node := l.arena[0].next; node != 0; node = l.arena[node].next {
		k := l.arena[node].entry.Key
		if k == key {
			return l.arena[node].entry, true
		}
		if k > key {
			break
		}
	}
	return Entry{}, false
}

func (l *linkedList) IsEmpty() bool { return l.count == 0 }

func (l *linkedList) Clear() {
	l.arena = l.arena[:1]
	l.arena[0] = listNode{}
	l.count = 0
	l.sizeBytes = 0
}

func (l *linkedList) SizeBytes() int64 { return l.sizeBytes }
func (l *linkedList) EntryCount() int  { return l.count }

func (l *linkedList) SnapshotAll() []Entry {
	out := make([]Entry, 0, l.count)
	for node := l.arena[0].next; node != 0; node = l.arena[node].next {
		out = append(out, l.arena[node].entry)
	}
	return out
}
