package compaction

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/hupe1980/lsmkv/memtable"
	"github.com/hupe1980/lsmkv/sstable"
)

// throttleBatch is the number of merged rows between limiter waits and
// cancellation checks.
const throttleBatch = 1024

// MergerOptions contains configuration for the merger.
type MergerOptions struct {
	// Throttle caps merge throughput in rows per second. Nil disables
	// throttling.
	Throttle *rate.Limiter
}

// Merger executes planned merges. It is safe for concurrent use as long as
// no two concurrent merges share a source segment; the engine guarantees
// that by running at most one compaction per level.
type Merger struct {
	dir      string
	throttle *rate.Limiter
}

// NewMerger creates a merger writing merged segments into dir.
func NewMerger(dir string, optFns ...func(o *MergerOptions)) *Merger {
	opts := MergerOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Merger{
		dir:      dir,
		throttle: opts.Throttle,
	}
}

// Merge k-way-merges the group into a single segment at targetLevel and
// persists it under the given sequence number. Duplicate keys resolve to the
// newest source. Tombstones are carried over unless dropTombstones is set,
// which is only safe when targetLevel is the deepest level (no older segment
// below could still hold the deleted key).
//
// On any failure the source segments are left untouched and remain
// authoritative; the new file only becomes visible via an atomic rename
// after a successful sync.
func (m *Merger) Merge(ctx context.Context, g Group, targetLevel int, seq uint64, dropTombstones bool) (*sstable.SSTable, error) {
	if len(g.Tables) == 0 {
		return nil, fmt.Errorf("compaction: cannot merge an empty group")
	}

	streams := make([][]memtable.Entry, 0, len(g.Tables))
	for _, t := range g.Tables {
		streams = append(streams, t.Entries())
	}

	it := NewMergeIterator(streams)

	var merged []memtable.Entry
	sinceCheck := 0
	for {
		entry, ok := it.Next()
		if !ok {
			break
		}

		sinceCheck++
		if sinceCheck >= throttleBatch {
			sinceCheck = 0
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("compaction: merge canceled: %w", err)
			}
			if m.throttle != nil {
				if err := m.throttle.WaitN(ctx, throttleBatch); err != nil {
					return nil, fmt.Errorf("compaction: merge canceled: %w", err)
				}
			}
		}

		if dropTombstones && entry.Tombstone {
			continue
		}
		merged = append(merged, entry)
	}

	if len(merged) == 0 {
		// Possible when every surviving entry was a dropped tombstone. The
		// sources can simply be deleted; there is nothing to write.
		return nil, nil
	}

	out, err := sstable.Build(merged, targetLevel, seq)
	if err != nil {
		return nil, fmt.Errorf("compaction: failed to build merged segment: %w", err)
	}

	if _, err := out.Save(m.dir); err != nil {
		return nil, fmt.Errorf("compaction: failed to persist merged segment: %w", err)
	}

	return out, nil
}
