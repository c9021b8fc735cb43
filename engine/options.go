package engine

import (
	"time"

	"github.com/hupe1980/lsmkv/memtable"
)

// Options contains configuration for the LSM engine.
type Options struct {
	// DataDir is the directory holding the persisted segments.
	DataDir string

	// MemtableVariant selects the in-memory buffer implementation.
	MemtableVariant memtable.Variant

	// MemtableMaxBytes flushes the memtable once its payload reaches this
	// size. Zero disables the byte threshold.
	MemtableMaxBytes int64

	// MemtableMaxEntries flushes the memtable once it holds this many
	// entries. Zero disables the entry threshold.
	MemtableMaxEntries int

	// MaxLevel is the deepest LSM level. Merges targeting it drop
	// tombstones, since no older segment can exist below.
	MaxLevel int

	// MaxMergeFiles is the overlap-group size that forces a compaction.
	MaxMergeFiles int

	// CompactionEnabled starts the background compaction loop.
	CompactionEnabled bool

	// CompactionInterval is the poll interval of the background loop.
	// Flushes additionally nudge the loop immediately.
	CompactionInterval time.Duration

	// CompactionRowsPerSecond throttles merge throughput. Zero disables
	// throttling.
	CompactionRowsPerSecond int

	// Logger is used for diagnostics. Defaults to a no-op logger.
	Logger Logger
}

// DefaultOptions returns the default engine options.
var DefaultOptions = Options{
	DataDir:            "data",
	MemtableVariant:    memtable.VariantSkipList,
	MemtableMaxBytes:   4 << 20,
	MaxLevel:           3,
	MaxMergeFiles:      4,
	CompactionEnabled:  true,
	CompactionInterval: time.Second,
}

// Logger is the minimal logging surface the engine needs.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}
