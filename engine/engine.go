// Package engine implements the LSM coordinator: one active memtable in
// front of leveled, immutable SSTable segments. Writes land in the memtable
// and spill to level-0 segments when it fills; reads probe the memtable
// first and then the levels newest to oldest; a background loop compacts
// overlapping segments into deeper levels.
//
// Durability (write-ahead logging and recovery) is layered on top by the
// database orchestrator; the engine itself only coordinates memory and
// segment state.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/hupe1980/lsmkv/compaction"
	"github.com/hupe1980/lsmkv/memtable"
	"github.com/hupe1980/lsmkv/sstable"
)

// Journal is the write-ahead hook the coordinator drives. Appends happen
// inside the same critical section as the memtable mutation, making the two
// one atomic unit per key; Clear is invoked after each successful flush
// while that lock is still held, so no logged-but-unflushed record can be
// truncated away.
type Journal interface {
	AppendPut(key, value string) error
	AppendDelete(key string) error
	Clear() error
}

// Engine coordinates the memtable and the leveled segment catalog.
type Engine struct {
	opts Options

	// mu guards the active memtable. The catalog is lock-free for readers;
	// catMu serializes catalog writers.
	mu      sync.RWMutex
	mem     memtable.Memtable
	journal Journal
	catMu   sync.Mutex
	catalog atomic.Pointer[catalog]

	segSeq  atomic.Uint64
	planner *compaction.Planner
	merger  *compaction.Merger
	// levelBusy[i] is held while a compaction of level i is in flight.
	levelBusy []sync.Mutex

	flushCh   chan struct{}
	closeCh   chan struct{}
	cancelBg  context.CancelFunc
	bgWg      sync.WaitGroup
	closed    atomic.Bool
	logger    Logger
}

// New creates an engine over the configured data directory, loading any
// segments a previous run left behind.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.MaxLevel < 1 {
		return nil, fmt.Errorf("engine: max level must be at least 1, got %d", opts.MaxLevel)
	}

	mem, err := memtable.New(opts.MemtableVariant, memtable.Limits{
		MaxBytes:   opts.MemtableMaxBytes,
		MaxEntries: opts.MemtableMaxEntries,
	})
	if err != nil {
		return nil, err
	}

	var mergerOpts []func(o *compaction.MergerOptions)
	if opts.CompactionRowsPerSecond > 0 {
		limiter := rate.NewLimiter(rate.Limit(opts.CompactionRowsPerSecond), opts.CompactionRowsPerSecond)
		mergerOpts = append(mergerOpts, func(o *compaction.MergerOptions) {
			o.Throttle = limiter
		})
	}

	e := &Engine{
		opts:      opts,
		mem:       mem,
		planner:   compaction.NewPlanner(opts.MaxMergeFiles),
		merger:    compaction.NewMerger(opts.DataDir, mergerOpts...),
		levelBusy: make([]sync.Mutex, opts.MaxLevel+1),
		flushCh:   make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		logger:    opts.Logger,
	}

	if err := e.loadSegments(); err != nil {
		return nil, err
	}

	if opts.CompactionEnabled {
		ctx, cancel := context.WithCancel(context.Background())
		e.cancelBg = cancel
		e.bgWg.Add(1)
		go e.compactionLoop(ctx)
	}

	return e, nil
}

// loadSegments scans the data directory and rebuilds the catalog from the
// segment files found there.
func (e *Engine) loadSegments() error {
	cat := newCatalog(e.opts.MaxLevel)

	if err := os.MkdirAll(e.opts.DataDir, 0o750); err != nil {
		return fmt.Errorf("engine: failed to create data directory: %w", err)
	}

	names, err := filepath.Glob(filepath.Join(e.opts.DataDir, "sstable_L*.parquet"))
	if err != nil {
		return fmt.Errorf("engine: failed to list segments: %w", err)
	}

	var maxSeq uint64
	loaded := 0
	for _, path := range names {
		st, err := sstable.Load(context.Background(), path)
		if err != nil {
			return fmt.Errorf("engine: failed to load segment %s: %w", filepath.Base(path), err)
		}

		meta := st.Metadata()
		if meta.Level > e.opts.MaxLevel {
			return fmt.Errorf("engine: segment %s has level %d beyond max level %d", filepath.Base(path), meta.Level, e.opts.MaxLevel)
		}
		if meta.Seq > maxSeq {
			maxSeq = meta.Seq
		}

		cat = cat.withSegment(st)
		loaded++
	}

	e.segSeq.Store(maxSeq)
	e.catalog.Store(cat)

	if loaded > 0 {
		e.logger.Infof("loaded %d segment(s), next segment seq %d", loaded, maxSeq+1)
	}

	return nil
}

// Put inserts or overwrites a key. A memtable that reports full is flushed
// to a new level-0 segment before Put returns; the swap from full memtable
// to registered segment is invisible to concurrent readers.
func (e *Engine) Put(ctx context.Context, key, value string) error {
	return e.apply(ctx, memtable.Entry{Key: key, Value: value})
}

// Delete writes a tombstone for the key. The physical entry is reclaimed at
// compaction time.
func (e *Engine) Delete(ctx context.Context, key string) error {
	return e.apply(ctx, memtable.Entry{Key: key, Tombstone: true})
}

func (e *Engine) apply(ctx context.Context, entry memtable.Entry) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.journal != nil {
		var err error
		if entry.Tombstone {
			err = e.journal.AppendDelete(entry.Key)
		} else {
			err = e.journal.AppendPut(entry.Key, entry.Value)
		}
		if err != nil {
			// Availability over durability: the write goes ahead without
			// its log record.
			e.logger.Warnf("write-ahead append failed, proceeding without durability: %v", err)
		}
	}

	if e.mem.Put(entry) {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}

	return nil
}

// AttachJournal wires the write-ahead hook in. Called once after recovery
// replay, so replayed operations are not logged a second time.
func (e *Engine) AttachJournal(j Journal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.journal = j
}

// Get returns the value stored under key, probing the memtable and then the
// levels newest to oldest. The first hit wins; a tombstone hit is a
// definitive absence.
func (e *Engine) Get(ctx context.Context, key string) (string, error) {
	if e.closed.Load() {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.mu.RLock()
	entry, ok := e.mem.Get(key)
	e.mu.RUnlock()

	if ok {
		if entry.Tombstone {
			return "", ErrNotFound
		}
		return entry.Value, nil
	}

	cat := e.catalog.Load()
	for _, level := range cat.levels {
		for _, t := range level {
			entry, ok := t.Get(key)
			if !ok {
				continue
			}
			if entry.Tombstone {
				return "", ErrNotFound
			}
			return entry.Value, nil
		}
	}

	return "", ErrNotFound
}

// RangeQuery returns all live entries with start <= key <= end in ascending
// key order, resolving duplicates and tombstones across the memtable and
// every level.
func (e *Engine) RangeQuery(ctx context.Context, start, end string) ([]memtable.Entry, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Snapshot the memtable before loading the catalog: a concurrent flush
	// publishes its segment first and clears the memtable second, so this
	// order guarantees every key lands in at least one stream. A key caught
	// in both resolves to the memtable copy, which is the newer one.
	e.mu.RLock()
	memEntries := e.mem.SnapshotAll()
	e.mu.RUnlock()

	// Streams ordered oldest to newest so the merge resolves duplicates
	// toward the most recent writer: deepest level first, memtable last.
	var streams [][]memtable.Entry

	cat := e.catalog.Load()
	for i := len(cat.levels) - 1; i >= 0; i-- {
		for j := len(cat.levels[i]) - 1; j >= 0; j-- {
			streams = append(streams, cat.levels[i][j].RangeQuery(start, end))
		}
	}

	inRange := make([]memtable.Entry, 0, len(memEntries))
	for _, entry := range memEntries {
		if entry.Key >= start && entry.Key <= end {
			inRange = append(inRange, entry)
		}
	}
	streams = append(streams, inRange)

	return compaction.NewMergeIterator(streams).Drain(true), nil
}

// Flush forces the active memtable into a new level-0 segment. A no-op when
// the memtable is empty.
func (e *Engine) Flush(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.mem.IsEmpty() {
		return nil
	}

	return e.flushLocked()
}

// flushLocked writes the memtable to a level-0 segment, publishes it in the
// catalog and clears the memtable. Callers hold the write lock. Publication
// happens before the clear, so no reader can miss a key in both places.
func (e *Engine) flushLocked() error {
	entries := e.mem.SnapshotAll()
	if len(entries) == 0 {
		return nil
	}

	seq := e.segSeq.Add(1)

	st, err := sstable.Build(entries, 0, seq)
	if err != nil {
		return fmt.Errorf("engine: flush failed: %w", err)
	}
	if _, err := st.Save(e.opts.DataDir); err != nil {
		return fmt.Errorf("engine: flush failed: %w", err)
	}

	e.catMu.Lock()
	e.catalog.Store(e.catalog.Load().withSegment(st))
	e.catMu.Unlock()

	e.mem.Clear()

	// Every logged entry is now in a persisted segment, so the journal can
	// restart. Replay is idempotent, so a crash landing between the flush
	// and this truncation is harmless.
	if e.journal != nil {
		if err := e.journal.Clear(); err != nil {
			e.logger.Warnf("failed to truncate journal after flush: %v", err)
		}
	}

	e.logger.Infof("flushed %d entries to %s", len(entries), filepath.Base(st.Metadata().Path))

	// Nudge the background loop; a flush is the usual compaction trigger.
	select {
	case e.flushCh <- struct{}{}:
	default:
	}

	return nil
}

// MemtableEntryCount returns the number of entries buffered in the active
// memtable.
func (e *Engine) MemtableEntryCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.mem.EntryCount()
}

// LevelSegmentCounts returns the number of segments per level, index 0
// first.
func (e *Engine) LevelSegmentCounts() []int {
	cat := e.catalog.Load()

	counts := make([]int, len(cat.levels))
	for i, level := range cat.levels {
		counts[i] = len(level)
	}

	return counts
}

// Stats returns a diagnostic aggregate of memtable and per-level segment
// state.
func (e *Engine) Stats() map[string]any {
	e.mu.RLock()
	memEntries := e.mem.EntryCount()
	memBytes := e.mem.SizeBytes()
	e.mu.RUnlock()

	cat := e.catalog.Load()

	levelCounts := make([]int, len(cat.levels))
	segmentEntries := 0
	var segmentBytes int64
	for i, level := range cat.levels {
		levelCounts[i] = len(level)
		for _, t := range level {
			segmentEntries += t.EntryCount()
			segmentBytes += t.Metadata().FileSize
		}
	}

	return map[string]any{
		"memtable_variant": string(e.opts.MemtableVariant),
		"memtable_entries": memEntries,
		"memtable_bytes":   memBytes,
		"segment_count":    cat.segmentCount(),
		"segment_entries":  segmentEntries,
		"segment_bytes":    segmentBytes,
		"level_counts":     levelCounts,
	}
}

// Close stops background compaction and flushes the remaining memtable
// contents. In-flight merges either finish and register or are abandoned
// with their inputs untouched. Close is idempotent.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	if e.cancelBg != nil {
		e.cancelBg()
	}
	close(e.closeCh)
	e.bgWg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mem.IsEmpty() {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}

	return nil
}
