package lsmkv

import (
	"time"

	"github.com/hupe1980/lsmkv/internal/fs"
	"github.com/hupe1980/lsmkv/memtable"
	"github.com/hupe1980/lsmkv/wal"
)

// Options contains configuration for the database.
type Options struct {
	// MemtableVariant selects the in-memory buffer implementation.
	MemtableVariant memtable.Variant

	// MemtableMaxBytes flushes the memtable once its payload reaches this
	// size. Zero disables the byte threshold.
	MemtableMaxBytes int64

	// MemtableMaxEntries flushes the memtable once it holds this many
	// entries. Zero disables the entry threshold.
	MemtableMaxEntries int

	// MaxLevel is the deepest LSM level.
	MaxLevel int

	// MaxMergeFiles is the overlap-group size that forces a compaction.
	MaxMergeFiles int

	// CompactionEnabled starts the background compaction loop.
	CompactionEnabled bool

	// CompactionInterval is the poll interval of the background loop.
	CompactionInterval time.Duration

	// CompactionRowsPerSecond throttles merge throughput. Zero disables
	// throttling.
	CompactionRowsPerSecond int

	// WALEnabled turns write-ahead logging (and startup recovery) on.
	WALEnabled bool

	// WALSyncMode controls fsync behavior (sync, async, batch).
	WALSyncMode wal.SyncMode

	// WALCompression selects the log stream compression (none, lz4, zstd).
	WALCompression wal.Compression

	// MaxConcurrentOps caps the number of simultaneously executing public
	// operations. Must be positive.
	MaxConcurrentOps int64

	// Logger is used for diagnostics. Defaults to a no-op logger.
	Logger *Logger

	// Metrics receives operational metrics. Defaults to a no-op collector.
	Metrics MetricsCollector

	// FS is the file system the WAL lives on. Defaults to the local disk.
	FS fs.FileSystem
}

// DefaultOptions returns the default database options.
var DefaultOptions = Options{
	MemtableVariant:    memtable.VariantSkipList,
	MemtableMaxBytes:   4 << 20,
	MaxLevel:           3,
	MaxMergeFiles:      4,
	CompactionEnabled:  true,
	CompactionInterval: time.Second,
	WALEnabled:         true,
	WALSyncMode:        wal.SyncModeSync,
	WALCompression:     wal.CompressionNone,
	MaxConcurrentOps:   64,
}
