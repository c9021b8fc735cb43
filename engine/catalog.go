package engine

import (
	"sort"

	"github.com/hupe1980/lsmkv/sstable"
)

// catalog is the immutable per-level segment set exposed to readers. Every
// mutation builds a fresh catalog and publishes it with a single atomic
// pointer store, so a reader always observes a complete state: either the
// old segment set or the new one, never something in between.
type catalog struct {
	// levels[i] holds level-i segments ordered newest first (descending
	// sequence), which is the read order within a level.
	levels [][]*sstable.SSTable
}

func newCatalog(maxLevel int) *catalog {
	return &catalog{levels: make([][]*sstable.SSTable, maxLevel+1)}
}

// withSegment returns a copy of the catalog with the segment added to its
// level.
func (c *catalog) withSegment(t *sstable.SSTable) *catalog {
	next := c.clone()
	level := t.Metadata().Level
	next.levels[level] = append(next.levels[level], t)
	sortLevel(next.levels[level])

	return next
}

// withMergeApplied returns a copy of the catalog with the source segments
// removed and the merged segment (nil when the merge produced no surviving
// rows) added to its level.
func (c *catalog) withMergeApplied(sources []*sstable.SSTable, merged *sstable.SSTable) *catalog {
	drop := make(map[*sstable.SSTable]struct{}, len(sources))
	for _, s := range sources {
		drop[s] = struct{}{}
	}

	next := c.clone()
	for i, level := range next.levels {
		kept := make([]*sstable.SSTable, 0, len(level))
		for _, t := range level {
			if _, ok := drop[t]; !ok {
				kept = append(kept, t)
			}
		}
		next.levels[i] = kept
	}

	if merged != nil {
		level := merged.Metadata().Level
		next.levels[level] = append(next.levels[level], merged)
		sortLevel(next.levels[level])
	}

	return next
}

func (c *catalog) clone() *catalog {
	levels := make([][]*sstable.SSTable, len(c.levels))
	for i, l := range c.levels {
		levels[i] = append([]*sstable.SSTable(nil), l...)
	}

	return &catalog{levels: levels}
}

// segmentCount returns the total number of segments across all levels.
func (c *catalog) segmentCount() int {
	n := 0
	for _, l := range c.levels {
		n += len(l)
	}

	return n
}

func sortLevel(level []*sstable.SSTable) {
	sort.Slice(level, func(i, j int) bool {
		return level[i].Metadata().Seq > level[j].Metadata().Seq
	})
}
