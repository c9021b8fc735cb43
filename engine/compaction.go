package engine

import (
	"context"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lsmkv/sstable"
)

// compactionLoop periodically scans every level for mergeable overlap
// groups. Flushes nudge it immediately via flushCh; Close cancels it via
// closeCh and the background context.
func (e *Engine) compactionLoop(ctx context.Context) {
	defer e.bgWg.Done()

	ticker := time.NewTicker(e.opts.CompactionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closeCh:
			return
		case <-ticker.C:
		case <-e.flushCh:
		}

		if err := e.compactAll(ctx, true); err != nil {
			e.logger.Errorf("background compaction: %v", err)
		}
	}
}

// CompactNow synchronously runs one compaction pass over every level.
// Mainly useful for tests and administrative tooling; the background loop
// does the same work continuously.
func (e *Engine) CompactNow(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}

	return e.compactAll(ctx, false)
}

// compactAll compacts each level, in parallel when requested. Levels are
// disjoint sources, so parallel passes never share an input segment.
func (e *Engine) compactAll(ctx context.Context, parallel bool) error {
	if !parallel {
		for level := 0; level <= e.opts.MaxLevel; level++ {
			if err := e.compactLevel(ctx, level); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for level := 0; level <= e.opts.MaxLevel; level++ {
		g.Go(func() error {
			return e.compactLevel(ctx, level)
		})
	}

	return g.Wait()
}

// compactLevel merges every qualifying overlap group of one level into the
// next deeper level (the deepest level compacts onto itself). At most one
// compaction per level runs at a time; a busy level is skipped, not queued.
func (e *Engine) compactLevel(ctx context.Context, level int) error {
	if !e.levelBusy[level].TryLock() {
		return nil
	}
	defer e.levelBusy[level].Unlock()

	tables := e.catalog.Load().levels[level]
	if len(tables) < 2 {
		return nil
	}

	groups := e.planner.PlanLevel(tables, level)

	for _, group := range groups {
		if !e.planner.ShouldMerge(group) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		target := level + 1
		if target > e.opts.MaxLevel {
			target = e.opts.MaxLevel
		}
		// Tombstones can only be reclaimed when nothing older exists
		// beneath the merge output.
		dropTombstones := target == e.opts.MaxLevel

		merged, err := e.merger.Merge(ctx, group, target, e.segSeq.Add(1), dropTombstones)
		if err != nil {
			return &CompactionError{Level: level, Err: err}
		}

		e.catMu.Lock()
		e.catalog.Store(e.catalog.Load().withMergeApplied(group.Tables, merged))
		e.catMu.Unlock()

		// Sources are unreachable for new readers from here on; their
		// files can go.
		for _, t := range group.Tables {
			if err := t.Remove(); err != nil {
				e.logger.Warnf("failed to remove compacted segment: %v", err)
			}
		}

		e.logCompaction(level, target, group.Tables, merged)
	}

	return nil
}

func (e *Engine) logCompaction(level, target int, sources []*sstable.SSTable, merged *sstable.SSTable) {
	if merged == nil {
		e.logger.Infof("compacted %d segment(s) on level %d away (all tombstones)", len(sources), level)
		return
	}

	e.logger.Infof(
		"compacted %d segment(s) from level %d into %s (level %d, %d entries)",
		len(sources), level, filepath.Base(merged.Metadata().Path), target, merged.EntryCount(),
	)
}
