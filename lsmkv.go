package lsmkv

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/lsmkv/engine"
	"github.com/hupe1980/lsmkv/internal/resource"
	"github.com/hupe1980/lsmkv/memtable"
	"github.com/hupe1980/lsmkv/wal"
)

// DB is an embedded LSM key-value store: an engine coordinating memtable
// and segments, fronted by a write-ahead log for crash recovery and an
// operation limiter.
type DB struct {
	opts    Options
	engine  *engine.Engine
	wal     *wal.WAL
	ctrl    *resource.Controller
	metrics MetricsCollector
	logger  *Logger
	closed  atomic.Bool
}

// Open opens (or creates) a database in dir, replays the write-ahead log
// and starts background compaction.
func Open(dir string, optFns ...func(o *Options)) (*DB, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WALEnabled && !opts.WALSyncMode.Valid() {
		return nil, &ConfigurationError{Option: "WALSyncMode", Err: ErrInvalidSyncMode}
	}
	if opts.MaxConcurrentOps <= 0 {
		return nil, &ConfigurationError{Option: "MaxConcurrentOps", Err: ErrInvalidConcurrency}
	}
	if opts.Logger == nil {
		opts.Logger = NoopLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetricsCollector{}
	}

	eng, err := engine.New(func(o *engine.Options) {
		o.DataDir = dir
		o.MemtableVariant = opts.MemtableVariant
		o.MemtableMaxBytes = opts.MemtableMaxBytes
		o.MemtableMaxEntries = opts.MemtableMaxEntries
		o.MaxLevel = opts.MaxLevel
		o.MaxMergeFiles = opts.MaxMergeFiles
		o.CompactionEnabled = opts.CompactionEnabled
		o.CompactionInterval = opts.CompactionInterval
		o.CompactionRowsPerSecond = opts.CompactionRowsPerSecond
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	db := &DB{
		opts:    opts,
		engine:  eng,
		ctrl:    resource.NewController(opts.MaxConcurrentOps),
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}

	if opts.WALEnabled {
		w, err := wal.Open(dir, func(o *wal.Options) {
			o.SyncMode = opts.WALSyncMode
			o.Compression = opts.WALCompression
			o.Logger = opts.Logger
			o.FS = opts.FS
		})
		if err != nil {
			_ = eng.Close()
			return nil, err
		}
		db.wal = w

		if err := db.recover(); err != nil {
			_ = w.Close()
			_ = eng.Close()
			return nil, err
		}

		// From here on every mutation is logged before it lands in the
		// memtable. Attaching after replay keeps replayed operations from
		// being logged twice.
		eng.AttachJournal(&walJournal{w: w, metrics: opts.Metrics})
	}

	return db, nil
}

// recover replays the write-ahead log into the engine. Replay is
// idempotent: records whose effects already reached a segment simply
// overwrite with the same value.
func (db *DB) recover() error {
	start := time.Now()
	replayed := 0

	err := db.wal.Replay(func(e wal.Entry) error {
		replayed++
		switch e.Op {
		case wal.OpDelete:
			return db.engine.Delete(context.Background(), e.Key)
		default:
			return db.engine.Put(context.Background(), e.Key, e.Value)
		}
	})
	if err != nil {
		return fmt.Errorf("lsmkv: recovery failed: %w", err)
	}

	db.metrics.RecordRecovery(replayed, time.Since(start))
	if replayed > 0 {
		db.logger.Infof("recovered %d operation(s) from the write-ahead log", replayed)
	}

	return nil
}

// Put inserts or overwrites a key.
func (db *DB) Put(ctx context.Context, key, value string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return err
	}
	defer db.ctrl.ReleaseOp()

	start := time.Now()
	err := db.engine.Put(ctx, key, value)
	db.metrics.RecordPut(time.Since(start), err)

	return err
}

// Get returns the value stored under key, or ErrNotFound.
func (db *DB) Get(ctx context.Context, key string) (string, error) {
	if db.closed.Load() {
		return "", ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return "", err
	}
	defer db.ctrl.ReleaseOp()

	start := time.Now()
	value, err := db.engine.Get(ctx, key)
	db.metrics.RecordGet(time.Since(start), err)

	return value, err
}

// Delete removes a key. Deleting an absent key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return err
	}
	defer db.ctrl.ReleaseOp()

	start := time.Now()
	err := db.engine.Delete(ctx, key)
	db.metrics.RecordDelete(time.Since(start), err)

	return err
}

// RangeQuery returns all live entries with start <= key <= end in ascending
// key order.
func (db *DB) RangeQuery(ctx context.Context, start, end string) ([]memtable.Entry, error) {
	if db.closed.Load() {
		return nil, ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return nil, err
	}
	defer db.ctrl.ReleaseOp()

	began := time.Now()
	entries, err := db.engine.RangeQuery(ctx, start, end)
	db.metrics.RecordRangeQuery(time.Since(began), err)

	return entries, err
}

// Flush forces the active memtable into a level-0 segment.
func (db *DB) Flush(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return err
	}
	defer db.ctrl.ReleaseOp()

	start := time.Now()
	err := db.engine.Flush(ctx)
	db.metrics.RecordFlush(time.Since(start), err)

	return err
}

// Compact synchronously runs one compaction pass over every level.
func (db *DB) Compact(ctx context.Context) error {
	if db.closed.Load() {
		return ErrClosed
	}
	if err := db.ctrl.AcquireOp(ctx); err != nil {
		return err
	}
	defer db.ctrl.ReleaseOp()

	return db.engine.CompactNow(ctx)
}

// Stats returns a diagnostic aggregate of engine, WAL and concurrency
// state.
func (db *DB) Stats() map[string]any {
	stats := db.engine.Stats()
	stats["ops_in_flight"] = db.ctrl.InFlight()
	if db.wal != nil {
		stats["wal_seq"] = db.wal.SeqNum()
	}

	return stats
}

// Close flushes the memtable, stops background compaction and closes the
// write-ahead log. Close is idempotent.
func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}

	// The engine flush clears the journal, so a clean shutdown restarts
	// with an empty log.
	err := db.engine.Close()

	if db.wal != nil {
		if closeErr := db.wal.Close(); err == nil {
			err = closeErr
		}
	}

	return err
}

// walJournal adapts the WAL to the engine's journal hook.
type walJournal struct {
	w       *wal.WAL
	metrics MetricsCollector
}

func (j *walJournal) AppendPut(key, value string) error {
	if _, err := j.w.Append(wal.OpPut, key, value); err != nil {
		j.metrics.RecordDurabilityWarning()
		return err
	}

	return nil
}

func (j *walJournal) AppendDelete(key string) error {
	if _, err := j.w.Append(wal.OpDelete, key, ""); err != nil {
		j.metrics.RecordDurabilityWarning()
		return err
	}

	return nil
}

func (j *walJournal) Clear() error {
	return j.w.Clear()
}
