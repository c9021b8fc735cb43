package memtable

// hashSkipList layers a hash map over the arena-indexed skip list: the map
// provides O(1) point reads by node handle, the skip list keeps the ordering
// needed for flush snapshots.
type hashSkipList struct {
	list  *skipList
	index map[string]int32
}

func newHashSkipList(limits Limits) *hashSkipList {
	return &hashSkipList{
		list:  newSkipList(limits),
		index: make(map[string]int32),
	}
}

func (h *hashSkipList) Put(e Entry) bool {
	h.index[e.Key] = h.list.put(e)
	return h.list.limits.reached(h.list.sizeBytes, h.list.count)
}

func (h *hashSkipList) Get(key string) (Entry, bool) {
	node, ok := h.index[key]
	if !ok {
		return Entry{}, false
	}
	return h.list.arena[node].entry, true
}

func (h *hashSkipList) IsEmpty() bool { return h.list.count == 0 }

func (h *hashSkipList) Clear() {
	h.list.clear()
	clear(h.index)
}

func (h *hashSkipList) SizeBytes() int64     { return h.list.sizeBytes }
func (h *hashSkipList) EntryCount() int      { return h.list.count }
func (h *hashSkipList) SnapshotAll() []Entry { return h.list.snapshotAll() }
