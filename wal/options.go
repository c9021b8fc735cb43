package wal

import (
	"time"

	"github.com/hupe1980/lsmkv/internal/fs"
)

// SyncMode defines the fsync behavior for WAL appends.
type SyncMode string

const (
	// SyncModeSync fsyncs after every append. Slowest, strongest guarantee.
	SyncModeSync SyncMode = "sync"

	// SyncModeAsync never fsyncs explicitly. Fastest, weakest guarantee;
	// durability is left to the OS page cache.
	SyncModeAsync SyncMode = "async"

	// SyncModeBatch groups appends and fsyncs at regular intervals or once
	// enough appends are pending, amortizing the fsync cost.
	SyncModeBatch SyncMode = "batch"
)

// Valid reports whether m is a known sync mode.
func (m SyncMode) Valid() bool {
	switch m {
	case SyncModeSync, SyncModeAsync, SyncModeBatch:
		return true
	}
	return false
}

// Compression selects the stream compression applied to the log file.
type Compression uint8

const (
	// CompressionNone stores the log uncompressed.
	CompressionNone Compression = iota
	// CompressionLZ4 applies LZ4 framing (fast, moderate ratio).
	CompressionLZ4
	// CompressionZSTD applies zstd framing (better ratio, slightly slower).
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Options contains configuration for the WAL.
type Options struct {
	// FileName is the log file name inside the WAL directory.
	FileName string

	// SyncMode controls fsync behavior (sync, async, batch).
	SyncMode SyncMode

	// Compression selects the stream compression (none, lz4, zstd).
	Compression Compression

	// CompressionLevel sets the zstd compression level. Ignored for other
	// codecs. Default 3.
	CompressionLevel int

	// BatchInterval is the maximum time to wait before fsync in batch mode.
	BatchInterval time.Duration

	// BatchMaxOps is the maximum number of appends to batch before fsync in
	// batch mode.
	BatchMaxOps int

	// Logger receives warnings about skipped malformed records.
	Logger Logger

	// FS is the file system the log lives on. Defaults to the local disk;
	// tests substitute a fault-injecting implementation.
	FS fs.FileSystem
}

// DefaultOptions returns the default WAL options.
var DefaultOptions = Options{
	FileName:         "lsmkv.wal",
	SyncMode:         SyncModeSync,
	Compression:      CompressionNone,
	CompressionLevel: 3,
	BatchInterval:    10 * time.Millisecond,
	BatchMaxOps:      100,
	Logger:           noopLogger{},
}

// Logger is the minimal logging surface the WAL needs.
type Logger interface {
	Warnf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warnf(string, ...any) {}
