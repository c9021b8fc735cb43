package memtable

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The same functional suite runs against every backend.
func forEachVariant(t *testing.T, fn func(t *testing.T, mt Memtable)) {
	t.Helper()

	for _, variant := range Variants() {
		t.Run(string(variant), func(t *testing.T) {
			mt, err := New(variant, Limits{})
			require.NoError(t, err)
			fn(t, mt)
		})
	}
}

func TestMemtablePutGet(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		assert.True(t, mt.IsEmpty())

		mt.Put(Entry{Key: "b", Value: "2"})
		mt.Put(Entry{Key: "a", Value: "1"})
		mt.Put(Entry{Key: "c", Value: "3"})

		e, ok := mt.Get("b")
		require.True(t, ok)
		assert.Equal(t, "2", e.Value)

		_, ok = mt.Get("missing")
		assert.False(t, ok)

		assert.False(t, mt.IsEmpty())
		assert.Equal(t, 3, mt.EntryCount())
	})
}

func TestMemtableOverwrite(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		mt.Put(Entry{Key: "k", Value: "v1"})
		mt.Put(Entry{Key: "k", Value: "v2"})

		e, ok := mt.Get("k")
		require.True(t, ok)
		assert.Equal(t, "v2", e.Value)
		assert.Equal(t, 1, mt.EntryCount())
	})
}

func TestMemtableTombstone(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		mt.Put(Entry{Key: "k", Value: "v"})
		mt.Put(Entry{Key: "k", Tombstone: true})

		e, ok := mt.Get("k")
		require.True(t, ok)
		assert.True(t, e.Tombstone)
		assert.Equal(t, 1, mt.EntryCount())
	})
}

func TestMemtableSnapshotSorted(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		keys := []string{"delta", "alpha", "echo", "bravo", "charlie"}
		for _, k := range keys {
			mt.Put(Entry{Key: k, Value: "v-" + k})
		}

		snap := mt.SnapshotAll()
		require.Len(t, snap, len(keys))
		assert.True(t, sort.SliceIsSorted(snap, func(i, j int) bool {
			return snap[i].Key < snap[j].Key
		}))

		// A snapshot is a copy: later mutations must not leak into it.
		mt.Put(Entry{Key: "alpha", Value: "changed"})
		assert.Equal(t, "v-alpha", snap[0].Value)
	})
}

func TestMemtableClear(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		mt.Put(Entry{Key: "a", Value: "1"})
		mt.Put(Entry{Key: "b", Value: "2"})
		mt.Clear()

		assert.True(t, mt.IsEmpty())
		assert.Equal(t, 0, mt.EntryCount())
		assert.Equal(t, int64(0), mt.SizeBytes())
		_, ok := mt.Get("a")
		assert.False(t, ok)

		// Reusable after clear.
		mt.Put(Entry{Key: "c", Value: "3"})
		e, ok := mt.Get("c")
		require.True(t, ok)
		assert.Equal(t, "3", e.Value)
	})
}

func TestMemtableSizeAccounting(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		e1 := Entry{Key: "key", Value: "value"}
		mt.Put(e1)
		assert.Equal(t, e1.SizeBytes(), mt.SizeBytes())

		// Overwrite adjusts, never double-counts.
		e2 := Entry{Key: "key", Value: "a-much-longer-value"}
		mt.Put(e2)
		assert.Equal(t, e2.SizeBytes(), mt.SizeBytes())
	})
}

func TestMemtableEntryLimit(t *testing.T) {
	for _, variant := range Variants() {
		t.Run(string(variant), func(t *testing.T) {
			mt, err := New(variant, Limits{MaxEntries: 4})
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				full := mt.Put(Entry{Key: fmt.Sprintf("key-%d", i), Value: "v"})
				assert.False(t, full)
			}
			assert.True(t, mt.Put(Entry{Key: "key-3", Value: "v"}))
		})
	}
}

func TestMemtableByteLimit(t *testing.T) {
	for _, variant := range Variants() {
		t.Run(string(variant), func(t *testing.T) {
			mt, err := New(variant, Limits{MaxBytes: 64})
			require.NoError(t, err)

			full := false
			for i := 0; i < 16 && !full; i++ {
				full = mt.Put(Entry{Key: fmt.Sprintf("key-%02d", i), Value: "0123456789"})
			}
			assert.True(t, full)
			assert.GreaterOrEqual(t, mt.SizeBytes(), int64(64))
		})
	}
}

func TestMemtableRandomizedAgainstMap(t *testing.T) {
	forEachVariant(t, func(t *testing.T, mt Memtable) {
		rng := rand.New(rand.NewPCG(1, 2))
		model := make(map[string]Entry)

		for i := 0; i < 2000; i++ {
			key := fmt.Sprintf("key-%03d", rng.IntN(200))
			e := Entry{Key: key, Value: fmt.Sprintf("val-%d", i), Tombstone: rng.IntN(10) == 0}
			mt.Put(e)
			model[key] = e
		}

		require.Equal(t, len(model), mt.EntryCount())
		for k, want := range model {
			got, ok := mt.Get(k)
			require.True(t, ok, "key %s", k)
			assert.Equal(t, want, got)
		}

		snap := mt.SnapshotAll()
		require.Len(t, snap, len(model))
		for i := 1; i < len(snap); i++ {
			assert.Less(t, snap[i-1].Key, snap[i].Key)
		}
	})
}

func TestNewUnknownVariant(t *testing.T) {
	_, err := New(Variant("btree"), Limits{})
	require.Error(t, err)
}
