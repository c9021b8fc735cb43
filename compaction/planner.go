// Package compaction merges overlapping SSTable segments into fewer, larger
// ones on deeper levels. The planner partitions a level's segments into
// transitive overlap groups, decides which groups are worth merging, and the
// merger executes the k-way merge, publishing the new segment atomically
// before its sources become eligible for deletion.
package compaction

import (
	"sort"

	"github.com/hupe1980/lsmkv/sstable"
)

// Group is a set of segments from one level whose key ranges are connected
// under the overlap relation.
type Group struct {
	Tables []*sstable.SSTable
	Level  int
}

// OverlapRatio returns the fraction of segment pairs in the group whose key
// ranges overlap. A group of fewer than two segments has ratio 0.
func (g Group) OverlapRatio() float64 {
	n := len(g.Tables)
	if n < 2 {
		return 0
	}

	overlapping := 0
	total := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total++
			if g.Tables[i].KeyRange().Overlaps(g.Tables[j].KeyRange()) {
				overlapping++
			}
		}
	}

	return float64(overlapping) / float64(total)
}

// Planner decides which segment groups should be compacted.
type Planner struct {
	// MaxMergeFiles is the group size at which a merge is forced.
	MaxMergeFiles int

	// OverlapThreshold is the overlap ratio above which a group is merged
	// regardless of size.
	OverlapThreshold float64
}

// NewPlanner creates a planner with the given merge-size threshold.
func NewPlanner(maxMergeFiles int) *Planner {
	if maxMergeFiles < 2 {
		maxMergeFiles = 2
	}

	return &Planner{
		MaxMergeFiles:    maxMergeFiles,
		OverlapThreshold: 0.5,
	}
}

// PlanLevel partitions the segments of one level into transitive overlap
// groups. Two segments land in the same group when they overlap directly or
// are connected through a chain of overlapping segments. Groups come back
// with tables ordered oldest first (ascending sequence).
func (p *Planner) PlanLevel(tables []*sstable.SSTable, level int) []Group {
	n := len(tables)
	if n == 0 {
		return nil
	}

	// Union-find over segment indices.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if tables[i].KeyRange().Overlaps(tables[j].KeyRange()) {
				union(i, j)
			}
		}
	}

	members := make(map[int][]*sstable.SSTable)
	for i, t := range tables {
		root := find(i)
		members[root] = append(members[root], t)
	}

	groups := make([]Group, 0, len(members))
	for _, tbls := range members {
		sort.Slice(tbls, func(i, j int) bool {
			return tbls[i].Metadata().Seq < tbls[j].Metadata().Seq
		})
		groups = append(groups, Group{Tables: tbls, Level: level})
	}

	// Deterministic order for tests and logs.
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Tables[0].Metadata().Seq < groups[j].Tables[0].Metadata().Seq
	})

	return groups
}

// ShouldMerge reports whether a group meets either merge criterion: it has
// grown to the configured file count, or more than the threshold fraction of
// its segment pairs overlap.
func (p *Planner) ShouldMerge(g Group) bool {
	if len(g.Tables) < 2 {
		return false
	}
	if len(g.Tables) >= p.MaxMergeFiles {
		return true
	}

	return g.OverlapRatio() > p.OverlapThreshold
}
