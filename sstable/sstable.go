// Package sstable implements the immutable on-disk segments of the LSM
// engine. A segment holds a sorted run of unique keys in a compressed
// columnar (Parquet) file, guarded by an in-memory bloom filter for cheap
// negative lookups. Segment files are written once and never modified;
// obsolete segments are removed by compaction.
package sstable

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hupe1980/lsmkv/memtable"
)

// DefaultFalsePositiveRate is the bloom filter target used when building
// and loading segments.
const DefaultFalsePositiveRate = 0.01

// SSTable is an immutable sorted segment. Entries are kept in memory for
// lookups; the authoritative copy lives in the Parquet file.
type SSTable struct {
	meta    Metadata
	entries []memtable.Entry
	filter  *BloomFilter
}

// Build creates an in-memory segment from sorted, unique entries (the shape
// produced by a memtable snapshot or a merge). The segment is not durable
// until Save is called.
func Build(entries []memtable.Entry, level int, seq uint64) (*SSTable, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("sstable: cannot build an empty segment")
	}

	for i := 1; i < len(entries); i++ {
		if entries[i].Key <= entries[i-1].Key {
			return nil, fmt.Errorf("sstable: entries must be sorted and unique, got %q after %q", entries[i].Key, entries[i-1].Key)
		}
	}

	filter := NewBloomFilter(len(entries), DefaultFalsePositiveRate)
	for _, e := range entries {
		filter.Add(e.Key)
	}

	return &SSTable{
		meta: Metadata{
			Level:      level,
			Seq:        seq,
			MinKey:     entries[0].Key,
			MaxKey:     entries[len(entries)-1].Key,
			EntryCount: len(entries),
			CreatedAt:  time.Now(),
		},
		entries: entries,
		filter:  filter,
	}, nil
}

// Save persists the segment into dir under its canonical file name and
// returns the final path. The file appears atomically: rows are written to a
// temp file which is renamed into place only after a successful sync.
func (s *SSTable) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("sstable: failed to create directory: %w", err)
	}

	path := filepath.Join(dir, FileName(s.meta.Level, s.meta.Seq))
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("sstable: failed to create segment file: %w", err)
	}

	// The Parquet writer closes whatever sink it is given, so hide the
	// Close method: syncing and closing the file stays our job.
	if err := writeSegment(struct{ io.Writer }{f}, s.entries); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("sstable: failed to sync segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("sstable: failed to close segment file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("sstable: failed to publish segment file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("sstable: failed to stat segment file: %w", err)
	}

	s.meta.Path = path
	s.meta.FileSize = info.Size()

	return path, nil
}

// Load reads a persisted segment and rebuilds its metadata and bloom filter
// from the stored keys. The filter itself is never persisted.
func Load(ctx context.Context, path string) (*SSTable, error) {
	level, seq, err := ParseFileName(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open segment file: %w", err)
	}
	defer f.Close()

	// The Parquet reader closes the file when released, so take the stat
	// before handing it over.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to stat segment file: %w", err)
	}

	entries, err := readSegment(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("sstable: segment %q is empty", path)
	}

	filter := NewBloomFilter(len(entries), DefaultFalsePositiveRate)
	for _, e := range entries {
		filter.Add(e.Key)
	}

	return &SSTable{
		meta: Metadata{
			Path:       path,
			Level:      level,
			Seq:        seq,
			MinKey:     entries[0].Key,
			MaxKey:     entries[len(entries)-1].Key,
			EntryCount: len(entries),
			FileSize:   info.Size(),
			CreatedAt:  info.ModTime(),
		},
		entries: entries,
		filter:  filter,
	}, nil
}

// Get returns the entry stored under key. The bloom filter rejects definite
// misses before the binary search; tombstone entries are returned as-is so
// the caller can distinguish "deleted here" from "not present here".
func (s *SSTable) Get(key string) (memtable.Entry, bool) {
	if !s.meta.KeyRange().Contains(key) {
		return memtable.Entry{}, false
	}
	if !s.filter.MayContain(key) {
		return memtable.Entry{}, false
	}

	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Key >= key
	})
	if i < len(s.entries) && s.entries[i].Key == key {
		return s.entries[i], true
	}

	return memtable.Entry{}, false
}

// RangeQuery returns entries with start <= key <= end in ascending key
// order. Tombstones are included; the coordinator filters them when merging
// results across levels.
func (s *SSTable) RangeQuery(start, end string) []memtable.Entry {
	if start > end {
		return nil
	}

	lo := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Key >= start
	})
	hi := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Key > end
	})
	if lo >= hi {
		return nil
	}

	out := make([]memtable.Entry, hi-lo)
	copy(out, s.entries[lo:hi])

	return out
}

// Entries returns the segment rows in key order. The returned slice is
// shared and must not be mutated.
func (s *SSTable) Entries() []memtable.Entry {
	return s.entries
}

// Metadata returns a copy of the segment metadata.
func (s *SSTable) Metadata() Metadata {
	return s.meta
}

// KeyRange returns the inclusive key span of the segment.
func (s *SSTable) KeyRange() KeyRange {
	return s.meta.KeyRange()
}

// EntryCount returns the number of rows in the segment.
func (s *SSTable) EntryCount() int {
	return s.meta.EntryCount
}

// Remove deletes the segment file from disk. The in-memory copy stays usable
// until released, which lets readers holding an old catalog snapshot finish.
func (s *SSTable) Remove() error {
	if s.meta.Path == "" {
		return nil
	}
	if err := os.Remove(s.meta.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sstable: failed to remove segment file: %w", err)
	}

	return nil
}

// Stats returns diagnostic counters for the segment.
func (s *SSTable) Stats() map[string]any {
	return map[string]any{
		"path":          s.meta.Path,
		"level":         s.meta.Level,
		"seq":           s.meta.Seq,
		"min_key":       s.meta.MinKey,
		"max_key":       s.meta.MaxKey,
		"entry_count":   s.meta.EntryCount,
		"file_size":     s.meta.FileSize,
		"filter_bits":   s.filter.NumBits(),
		"filter_hashes": s.filter.NumHashFuncs(),
	}
}
