package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWAL_AppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	require.NoError(t, err)

	e1, err := w.Append(OpPut, "alpha", "1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.SeqNum)

	e2, err := w.Append(OpPut, "beta", "2")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.SeqNum)

	e3, err := w.Append(OpDelete, "alpha", "")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), e3.SeqNum)

	var replayed []Entry
	err = w.Replay(func(e Entry) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, replayed, 3)
	assert.Equal(t, OpPut, replayed[0].Op)
	assert.Equal(t, "alpha", replayed[0].Key)
	assert.Equal(t, "1", replayed[0].Value)
	assert.Equal(t, OpDelete, replayed[2].Op)
	assert.Equal(t, uint64(3), replayed[2].SeqNum)

	require.NoError(t, w.Close())
}

func TestWAL_EscapedFields(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	require.NoError(t, err)

	key := "a,b\nc"
	value := "x,y%z"

	_, err = w.Append(OpPut, key, value)
	require.NoError(t, err)

	var got Entry
	err = w.Replay(func(e Entry) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, key, got.Key)
	assert.Equal(t, value, got.Value)

	require.NoError(t, w.Close())
}

func TestWAL_SeqNumRestoredAfterReopen(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := w.Append(OpPut, fmt.Sprintf("key%d", i), "v")
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	w, err = Open(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), w.SeqNum())

	e, err := w.Append(OpPut, "next", "v")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), e.SeqNum)

	require.NoError(t, w.Close())
}

func TestWAL_Compression(t *testing.T) {
	for _, compression := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			dir := t.TempDir()

			w, err := Open(dir, func(o *Options) {
				o.Compression = compression
			})
			require.NoError(t, err)

			for i := 0; i < 100; i++ {
				_, err := w.Append(OpPut, fmt.Sprintf("key%03d", i), fmt.Sprintf("value%03d", i))
				require.NoError(t, err)
			}
			require.NoError(t, w.Close())

			// Reopen appends a fresh frame to the same file; replay must
			// read across the frame boundary.
			w, err = Open(dir, func(o *Options) {
				o.Compression = compression
			})
			require.NoError(t, err)
			assert.Equal(t, uint64(100), w.SeqNum())

			_, err = w.Append(OpDelete, "key000", "")
			require.NoError(t, err)

			count := 0
			var last Entry
			err = w.Replay(func(e Entry) error {
				count++
				last = e
				return nil
			})
			require.NoError(t, err)

			assert.Equal(t, 101, count)
			assert.Equal(t, OpDelete, last.Op)
			assert.Equal(t, uint64(101), last.SeqNum)

			require.NoError(t, w.Close())
		})
	}
}

type capturingLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (l *capturingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func TestWAL_ReplaySkipsMalformedRecords(t *testing.T) {
	dir := t.TempDir()
	logger := &capturingLogger{}

	w, err := Open(dir, func(o *Options) {
		o.Logger = logger
	})
	require.NoError(t, err)
	_, err = w.Append(OpPut, "good1", "v1")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Corrupt the log with garbage lines between valid records.
	path := filepath.Join(dir, DefaultOptions.FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("not a record\nPUT,only,three\nBOGUS,k,v,123,9\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	w, err = Open(dir, func(o *Options) {
		o.Logger = logger
	})
	require.NoError(t, err)

	_, err = w.Append(OpPut, "good2", "v2")
	require.NoError(t, err)

	var keys []string
	err = w.Replay(func(e Entry) error {
		keys = append(keys, e.Key)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"good1", "good2"}, keys)
	assert.NotEmpty(t, logger.warnings)

	require.NoError(t, w.Close())
}

func TestWAL_Clear(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir)
	require.NoError(t, err)

	_, err = w.Append(OpPut, "a", "1")
	require.NoError(t, err)
	_, err = w.Append(OpPut, "b", "2")
	require.NoError(t, err)

	require.NoError(t, w.Clear())

	count := 0
	err = w.Replay(func(e Entry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, count)

	// Sequence numbers keep climbing across truncations.
	e, err := w.Append(OpPut, "c", "3")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), e.SeqNum)

	require.NoError(t, w.Close())
}

func TestWAL_SyncModes(t *testing.T) {
	for _, mode := range []SyncMode{SyncModeSync, SyncModeAsync} {
		t.Run(string(mode), func(t *testing.T) {
			dir := t.TempDir()

			w, err := Open(dir, func(o *Options) {
				o.SyncMode = mode
			})
			require.NoError(t, err)

			for i := 0; i < 10; i++ {
				_, err := w.Append(OpPut, fmt.Sprintf("key%d", i), "v")
				require.NoError(t, err)
			}

			count := 0
			require.NoError(t, w.Replay(func(e Entry) error {
				count++
				return nil
			}))
			assert.Equal(t, 10, count)

			require.NoError(t, w.Close())
		})
	}
}

func TestWAL_BatchModeGroupCommit(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, func(o *Options) {
		o.SyncMode = SyncModeBatch
		o.BatchInterval = 5 * time.Millisecond
		o.BatchMaxOps = 4
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.Append(OpPut, fmt.Sprintf("key%02d", i), "v")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count := 0
	require.NoError(t, w.Replay(func(e Entry) error {
		count++
		return nil
	}))
	assert.Equal(t, 16, count)
	assert.Equal(t, uint64(16), w.SeqNum())

	require.NoError(t, w.Close())
}

func TestWAL_InvalidSyncMode(t *testing.T) {
	_, err := Open(t.TempDir(), func(o *Options) {
		o.SyncMode = SyncMode("fsync-maybe")
	})
	require.Error(t, err)
}

func TestWAL_BatchModeRequiresPositiveIntervalAndMaxOps(t *testing.T) {
	// An appender below the batch threshold waits for the background
	// worker, so a configuration that never starts one must be rejected
	// instead of blocking the first Append forever.
	_, err := Open(t.TempDir(), func(o *Options) {
		o.SyncMode = SyncModeBatch
		o.BatchInterval = 0
	})
	require.Error(t, err)

	_, err = Open(t.TempDir(), func(o *Options) {
		o.SyncMode = SyncModeBatch
		o.BatchMaxOps = -1
	})
	require.Error(t, err)
}

func TestWAL_CloseIsIdempotent(t *testing.T) {
	w, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = w.Append(OpPut, "a", "1")
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Append(OpPut, "b", "2")
	require.Error(t, err)
}
