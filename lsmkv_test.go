package lsmkv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lsmkv/internal/fs"
	"github.com/hupe1980/lsmkv/memtable"
	"github.com/hupe1980/lsmkv/wal"
)

func openTestDB(t *testing.T, dir string, optFns ...func(o *Options)) *DB {
	t.Helper()

	db, err := Open(dir, append([]func(o *Options){func(o *Options) {
		o.CompactionEnabled = false
	}}, optFns...)...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestDB_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, t.TempDir())

	require.NoError(t, db.Put(ctx, "alpha", "1"))

	v, err := db.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, db.Delete(ctx, "alpha"))
	_, err = db.Get(ctx, "alpha")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, db.Delete(ctx, "never-existed"))
}

func TestDB_InvalidConfiguration(t *testing.T) {
	_, err := Open(t.TempDir(), func(o *Options) {
		o.WALSyncMode = wal.SyncMode("eventually")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSyncMode)

	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Equal(t, "WALSyncMode", confErr.Option)

	_, err = Open(t.TempDir(), func(o *Options) {
		o.MaxConcurrentOps = 0
	})
	assert.ErrorIs(t, err, ErrInvalidConcurrency)

	_, err = Open(t.TempDir(), func(o *Options) {
		o.MemtableVariant = memtable.Variant("btree")
	})
	require.Error(t, err)
}

func TestDB_RecoveryAfterUncleanShutdown(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := openTestDB(t, dir)
	require.NoError(t, db.Put(ctx, "a", "1"))
	require.NoError(t, db.Put(ctx, "b", "2"))
	require.NoError(t, db.Delete(ctx, "a"))

	// Simulate a crash: drop the handle without Close, so nothing is
	// flushed and the WAL is the only durable state.
	require.NoError(t, db.wal.Close())
	db.closed.Store(true)

	metrics := &BasicMetricsCollector{}
	db2 := openTestDB(t, dir, func(o *Options) {
		o.Metrics = metrics
	})

	_, err := db2.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	v, err := db2.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	assert.EqualValues(t, 3, metrics.Snapshot()["recovered_records"])
}

func TestDB_CleanShutdownRestartsWithEmptyWAL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db := openTestDB(t, dir)
	require.NoError(t, db.Put(ctx, "k", "v"))
	require.NoError(t, db.Close())

	metrics := &BasicMetricsCollector{}
	db2 := openTestDB(t, dir, func(o *Options) {
		o.Metrics = metrics
	})

	// Close flushed the memtable and truncated the log, so the restart
	// reads the key from its segment without any replay.
	assert.Zero(t, metrics.Snapshot()["recovered_records"])

	v, err := db2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestDB_FlushTruncatesWAL(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, t.TempDir(), func(o *Options) {
		o.MemtableMaxEntries = 4
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, db.Put(ctx, fmt.Sprintf("key%d", i), "v"))
	}

	// The 4th put flushed and cleared the log.
	count := 0
	require.NoError(t, db.wal.Replay(func(e wal.Entry) error {
		count++
		return nil
	}))
	assert.Zero(t, count)

	// Sequence numbers keep climbing across the truncation.
	require.NoError(t, db.Put(ctx, "key4", "v"))
	assert.EqualValues(t, 5, db.wal.SeqNum())
}

func TestDB_WALAppendFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()

	ffs := fs.NewFaultyFS(nil)
	metrics := &BasicMetricsCollector{}

	db := openTestDB(t, t.TempDir(), func(o *Options) {
		o.FS = ffs
		o.Metrics = metrics
	})

	require.NoError(t, db.Put(ctx, "before", "1"))

	// Break the log mid-flight. Writes must keep succeeding, now flagged
	// as durability warnings.
	ffs.FailPath(".wal", fs.Fault{FailWrites: true})

	require.NoError(t, db.Put(ctx, "during", "2"))
	require.NoError(t, db.Delete(ctx, "before"))

	v, err := db.Get(ctx, "during")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	assert.EqualValues(t, 2, metrics.Snapshot()["durability_warnings"])
}

func TestDB_EndToEndWithCompaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, t.TempDir(), func(o *Options) {
		o.MemtableMaxEntries = 4
		o.MaxMergeFiles = 2
		o.WALSyncMode = wal.SyncModeAsync
		o.WALCompression = wal.CompressionZSTD
	})

	want := map[string]string{}
	for i := 0; i < 32; i++ {
		k := fmt.Sprintf("key%02d", i%8)
		v := fmt.Sprintf("v%d", i)
		want[k] = v
		require.NoError(t, db.Put(ctx, k, v))
	}

	require.NoError(t, db.Flush(ctx))
	require.NoError(t, db.Compact(ctx))

	for k, v := range want {
		got, err := db.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	entries, err := db.RangeQuery(ctx, "key02", "key05")
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "key02", entries[0].Key)
	assert.Equal(t, want["key05"], entries[3].Value)
}

func TestDB_Stats(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, t.TempDir(), func(o *Options) {
		o.MemtableMaxEntries = 4
	})

	for i := 0; i < 6; i++ {
		require.NoError(t, db.Put(ctx, fmt.Sprintf("key%d", i), "v"))
	}

	stats := db.Stats()
	assert.Equal(t, 2, stats["memtable_entries"])
	assert.Equal(t, 1, stats["segment_count"])
	assert.EqualValues(t, 6, stats["wal_seq"])
	assert.EqualValues(t, 0, stats["ops_in_flight"])
}

func TestDB_ClosedDatabaseRejectsOperations(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, t.TempDir())

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Put(ctx, "k", "v"), ErrClosed)
	assert.ErrorIs(t, db.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, db.Flush(ctx), ErrClosed)
	assert.ErrorIs(t, db.Compact(ctx), ErrClosed)
	_, err := db.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.RangeQuery(ctx, "a", "z")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDB_MaintenanceOpsRespectCancellation(t *testing.T) {
	db := openTestDB(t, t.TempDir())

	// Flush and Compact pass through the same admission gate as the data
	// operations, so a canceled context rejects them up front.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, db.Flush(ctx))
	assert.Error(t, db.Compact(ctx))
}

func TestDB_MetricsCounters(t *testing.T) {
	ctx := context.Background()
	metrics := &BasicMetricsCollector{}

	db := openTestDB(t, t.TempDir(), func(o *Options) {
		o.Metrics = metrics
	})

	require.NoError(t, db.Put(ctx, "k", "v"))
	_, _ = db.Get(ctx, "k")
	_, _ = db.Get(ctx, "missing")
	require.NoError(t, db.Delete(ctx, "k"))
	_, err := db.RangeQuery(ctx, "a", "z")
	require.NoError(t, err)
	require.NoError(t, db.Flush(ctx))

	snap := metrics.Snapshot()
	assert.EqualValues(t, 1, snap["put_count"])
	assert.EqualValues(t, 2, snap["get_count"])
	assert.EqualValues(t, 1, snap["get_misses"])
	assert.EqualValues(t, 1, snap["delete_count"])
	assert.EqualValues(t, 1, snap["range_query_count"])
	assert.EqualValues(t, 1, snap["flush_count"])
}
