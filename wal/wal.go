// Package wal provides the write-ahead log of the LSM engine.
//
// Every mutation is appended to a durable, line-oriented log before it is
// applied to the memtable, so an unclean shutdown can be recovered by
// replaying the log in file order. The log supports three sync modes (sync,
// async, batch/group-commit) and optional stream compression (lz4 or zstd).
//
// Records are single lines of the form
//
//	operation,key,value,timestamp,sequence
//
// with percent-escaped key and value fields. Malformed records encountered
// during replay are skipped with a warning; replay never aborts on a bad
// record (availability over strictness).
package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/lsmkv/internal/fs"
)

// WAL is an append-only write-ahead log.
type WAL struct {
	mu        sync.Mutex
	file      fs.File
	writer    io.Writer // bufWriter, for symmetry with flush handling
	bufWriter *bufio.Writer
	zstdW     *zstd.Encoder
	lz4W      *lz4.Writer
	path      string
	opts      Options
	seqNum    uint64
	closed    bool

	// Batch (group commit) state.
	pending      int
	persistedSeq uint64
	syncCond     *sync.Cond
	batchTicker  *time.Ticker
	batchStopCh  chan struct{}
	batchWg      sync.WaitGroup
}

// Open opens or creates the write-ahead log in dir.
func Open(dir string, optFns ...func(o *Options)) (*WAL, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if !opts.SyncMode.Valid() {
		return nil, fmt.Errorf("wal: invalid sync mode: %q", opts.SyncMode)
	}
	if opts.SyncMode == SyncModeBatch && (opts.BatchInterval <= 0 || opts.BatchMaxOps <= 0) {
		return nil, fmt.Errorf("wal: batch mode requires a positive batch interval and max ops, got %v/%d", opts.BatchInterval, opts.BatchMaxOps)
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	if err := opts.FS.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("wal: failed to create directory: %w", err)
	}

	path := filepath.Join(dir, opts.FileName)
	file, err := opts.FS.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("wal: failed to open log file: %w", err)
	}

	w := &WAL{
		file: file,
		path: path,
		opts: opts,
	}
	w.syncCond = sync.NewCond(&w.mu)

	if err := w.initWriter(); err != nil {
		_ = file.Close()
		return nil, err
	}

	// Determine the next sequence number from the existing log, tolerating
	// a corrupted tail.
	if err := w.scanForSeqNum(); err != nil {
		_ = file.Close()
		return nil, err
	}

	if opts.SyncMode == SyncModeBatch {
		w.batchStopCh = make(chan struct{})
		w.batchTicker = time.NewTicker(opts.BatchInterval)
		w.batchWg.Add(1)
		go w.batchWorker()
	}

	return w, nil
}

// initWriter stacks the compression and buffering layers over the file.
func (w *WAL) initWriter() error {
	switch w.opts.Compression {
	case CompressionZSTD:
		level := zstd.EncoderLevelFromZstd(w.opts.CompressionLevel)
		enc, err := zstd.NewWriter(w.file, zstd.WithEncoderLevel(level))
		if err != nil {
			return fmt.Errorf("wal: failed to create zstd writer: %w", err)
		}
		w.zstdW = enc
		w.bufWriter = bufio.NewWriter(enc)
	case CompressionLZ4:
		w.lz4W = lz4.NewWriter(w.file)
		w.bufWriter = bufio.NewWriter(w.lz4W)
	default:
		w.bufWriter = bufio.NewWriter(w.file)
	}
	w.writer = w.bufWriter
	return nil
}

// Path returns the log file path.
func (w *WAL) Path() string {
	return w.path
}

// SeqNum returns the highest assigned sequence number.
func (w *WAL) SeqNum() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seqNum
}

// Append assigns the next sequence number to the operation, writes it to the
// log, and applies the configured sync policy. The returned entry carries the
// assigned sequence number and timestamp.
func (w *WAL) Append(op Op, key, value string) (Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Entry{}, fmt.Errorf("wal: log is closed")
	}

	w.seqNum++
	entry := Entry{
		Op:        op,
		Key:       key,
		Value:     value,
		Timestamp: time.Now().UnixMicro(),
		SeqNum:    w.seqNum,
	}

	if _, err := io.WriteString(w.writer, entry.encode()+"\n"); err != nil {
		return Entry{}, fmt.Errorf("wal: failed to write record: %w", err)
	}
	if err := w.flushLocked(); err != nil {
		return Entry{}, err
	}
	if err := w.syncLocked(); err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// flushLocked pushes buffered bytes through the compressor down to the file.
func (w *WAL) flushLocked() error {
	if err := w.bufWriter.Flush(); err != nil {
		return fmt.Errorf("wal: failed to flush buffer: %w", err)
	}
	if w.zstdW != nil {
		if err := w.zstdW.Flush(); err != nil {
			return fmt.Errorf("wal: failed to flush compressor: %w", err)
		}
	}
	if w.lz4W != nil {
		if err := w.lz4W.Flush(); err != nil {
			return fmt.Errorf("wal: failed to flush compressor: %w", err)
		}
	}
	return nil
}

// syncLocked applies the configured durability mode after an append.
func (w *WAL) syncLocked() error {
	switch w.opts.SyncMode {
	case SyncModeSync:
		return w.file.Sync()

	case SyncModeAsync:
		return nil

	case SyncModeBatch:
		w.pending++
		targetSeq := w.seqNum
		if w.pending >= w.opts.BatchMaxOps {
			return w.groupCommitLocked()
		}
		// Wait releases the mutex, letting the batch worker (or another
		// appender crossing the threshold) perform the fsync.
		for w.persistedSeq < targetSeq && !w.closed {
			w.syncCond.Wait()
		}
		return nil

	default:
		return nil
	}
}

// groupCommitLocked fsyncs pending appends and wakes blocked writers.
func (w *WAL) groupCommitLocked() error {
	if w.pending == 0 {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	w.pending = 0
	w.persistedSeq = w.seqNum
	w.syncCond.Broadcast()
	return nil
}

func (w *WAL) batchWorker() {
	defer w.batchWg.Done()

	for {
		select {
		case <-w.batchStopCh:
			w.mu.Lock()
			_ = w.groupCommitLocked()
			w.mu.Unlock()
			return

		case <-w.batchTicker.C:
			w.mu.Lock()
			_ = w.groupCommitLocked()
			w.mu.Unlock()
		}
	}
}

// Clear truncates the log. Safe only once every logged entry is reflected in
// persisted SSTables. Sequence numbers keep increasing across truncations.
func (w *WAL) Clear() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("wal: log is closed")
	}

	if err := w.teardownWriterLocked(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}

	file, err := w.opts.FS.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("wal: failed to truncate log file: %w", err)
	}
	w.file = file
	w.pending = 0
	w.persistedSeq = w.seqNum
	w.syncCond.Broadcast()

	return w.initWriter()
}

// teardownWriterLocked flushes and closes the compression layers.
func (w *WAL) teardownWriterLocked() error {
	if err := w.flushLocked(); err != nil {
		return err
	}
	if w.zstdW != nil {
		if err := w.zstdW.Close(); err != nil {
			return fmt.Errorf("wal: failed to close compressor: %w", err)
		}
		w.zstdW = nil
	}
	if w.lz4W != nil {
		if err := w.lz4W.Close(); err != nil {
			return fmt.Errorf("wal: failed to close compressor: %w", err)
		}
		w.lz4W = nil
	}
	return nil
}

// Close flushes pending appends and closes the log. Close is idempotent.
func (w *WAL) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.syncCond.Broadcast()

	if w.batchTicker != nil {
		close(w.batchStopCh)
		w.mu.Unlock()
		w.batchWg.Wait()
		w.mu.Lock()
		w.batchTicker.Stop()
		w.batchTicker = nil
	}

	err := w.teardownWriterLocked()
	if syncErr := w.file.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	w.mu.Unlock()
	return err
}
