package sstable

import (
	"fmt"
	"time"
)

// KeyRange is the inclusive [Min, Max] key span of a segment.
type KeyRange struct {
	Min string
	Max string
}

// Overlaps reports whether the two inclusive ranges share at least one key.
func (r KeyRange) Overlaps(other KeyRange) bool {
	return r.Min <= other.Max && r.Max >= other.Min
}

// Contains reports whether key falls inside the range.
func (r KeyRange) Contains(key string) bool {
	return key >= r.Min && key <= r.Max
}

// Metadata describes a persisted segment. The file content it points at is
// immutable once written.
type Metadata struct {
	// Path is the absolute path of the segment file. Empty until saved.
	Path string

	// Level is the LSM tier the segment belongs to.
	Level int

	// Seq disambiguates segments within a level; higher means newer.
	Seq uint64

	// MinKey and MaxKey bound the keys stored in the segment (inclusive).
	MinKey string
	MaxKey string

	// EntryCount is the number of rows in the segment.
	EntryCount int

	// FileSize is the on-disk size in bytes. Zero until saved.
	FileSize int64

	// CreatedAt records when the segment was written.
	CreatedAt time.Time
}

// KeyRange returns the inclusive key span of the segment.
func (m Metadata) KeyRange() KeyRange {
	return KeyRange{Min: m.MinKey, Max: m.MaxKey}
}

// FileName returns the canonical segment file name for a level and sequence,
// e.g. "sstable_L0_000042.parquet".
func FileName(level int, seq uint64) string {
	return fmt.Sprintf("sstable_L%d_%06d.parquet", level, seq)
}

// ParseFileName extracts level and sequence from a canonical segment file
// name.
func ParseFileName(name string) (level int, seq uint64, err error) {
	if _, err := fmt.Sscanf(name, "sstable_L%d_%d.parquet", &level, &seq); err != nil {
		return 0, 0, fmt.Errorf("sstable: unrecognized file name %q: %w", name, err)
	}

	return level, seq, nil
}
