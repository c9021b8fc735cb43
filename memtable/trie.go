package memtable

import "slices"

// trieNode is a byte-trie node addressed by its index in the arena.
// entryIdx < 0 means the node terminates no key.
type trieNode struct {
	children map[byte]int32
	entryIdx int32
}

// trie is an arena-indexed byte trie over keys. Entries are stored out of
// band in a flat slice; trie nodes only carry integer handles. Ordered
// iteration is a depth-first walk with children visited in byte order, which
// yields keys in lexicographic order by construction.
type trie struct {
	arena     []trieNode
	entries   []Entry
	count     int
	sizeBytes int64
	limits    Limits
}

func newTrie(limits Limits) *trie {
	t := &trie{limits: limits}
	t.arena = append(t.arena, trieNode{entryIdx: -1}) // root at index 0
	return t
}

func (t *trie) Put(e Entry) bool {
	node := int32(0)
	for i := 0; i < len(e.Key); i++ {
		b := e.Key[i]
		child, ok := t.arena[node].children[b]
		if !ok {
			child = int32(len(t.arena))
			t.arena = append(t.arena, trieNode{entryIdx: -1})
			if t.arena[node].children == nil {
				t.arena[node].children = make(map[byte]int32)
			}
			t.arena[node].children[b] = child
		}
		node = child
	}

	if idx := t.arena[node].entryIdx; idx >= 0 {
		t.sizeBytes += e.SizeBytes() - t.entries[idx].SizeBytes()
		t.entries[idx] = e
	} else {
		t.arena[node].entryIdx = int32(len(t.entries))
		t.entries = append(t.entries, e)
		t.count++
		t.sizeBytes += e.SizeBytes()
	}
	return t.limits.reached(t.sizeBytes, t.count)
}

func (t *trie) Get(key string) (Entry, bool) {
	node := int32(0)
	for i := 0; i < len(key); i++ {
		child, ok := t.arena[node].children[key[i]]
		if !ok {
			return Entry{}, false
		}
		node = child
	}
	if idx := t.arena[node].entryIdx; idx >= 0 {
		return t.entries[idx], true
	}
	return Entry{}, false
}

func (t *trie) IsEmpty() bool { return t.count == 0 }

func (t *trie) Clear() {
	t.arena = t.arena[:1]
	t.arena[0] = trieNode{entryIdx: -1, children: nil}
	t.entries = t.entries[:0]
	t.count = 0
	t.sizeBytes = 0
}

func (t *trie) SizeBytes() int64 { return t.sizeBytes }
func (t *trie) EntryCount() int  { return t.count }

func (t *trie) SnapshotAll() []Entry {
	out := make([]Entry, 0, t.count)
	t.walk(0, &out)
	return out
}

func (t *trie) walk(node int32, out *[]Entry) {
	if idx := t.arena[node].entryIdx; idx >= 0 {
		*out = append(*out, t.entries[idx])
	}
	children := t.arena[node].children
	if len(children) == 0 {
		return
	}
	bytes := make([]byte, 0, len(children))
	for b := range children {
		bytes = append(bytes, b)
	}
	slices.Sort(bytes)
	for _, b := range bytes {
		t.walk(children[b], out)
	}
}
