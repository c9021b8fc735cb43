package wal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Replay reads the log from the beginning and invokes fn for every valid
// record in file order. Malformed records are skipped with a warning. A
// corrupted compressed tail (e.g. after a crash mid-write) terminates the
// replay at the last decodable record rather than failing it.
//
// Replay must be driven by the caller's recovery logic: re-applying records
// whose effects already reached an SSTable must be harmless (it is for pure
// put/delete upserts).
func (w *WAL) Replay(fn func(e Entry) error) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return fmt.Errorf("wal: log is closed")
	}
	// Make sure everything appended so far is visible to the read handle.
	if err := w.flushLocked(); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	file, err := w.opts.FS.OpenFile(w.path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("wal: failed to open log for replay: %w", err)
	}
	defer file.Close()

	reader, cleanup, err := w.newReader(file)
	if err != nil {
		return err
	}
	defer cleanup()

	skipped := 0
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		entry, err := parseEntry(line)
		if err != nil {
			skipped++
			w.opts.Logger.Warnf("wal: skipping malformed record: %v", err)
			continue
		}

		if err := fn(entry); err != nil {
			return fmt.Errorf("wal: replay callback failed at seq %d: %w", entry.SeqNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		// An undecodable tail means the last write never completed. Every
		// record before it has been delivered, so recovery proceeds.
		w.opts.Logger.Warnf("wal: log tail unreadable, stopping replay: %v", err)
	}
	if skipped > 0 {
		w.opts.Logger.Warnf("wal: replay skipped %d malformed record(s)", skipped)
	}

	return nil
}

// scanForSeqNum restores the sequence counter from the existing log.
func (w *WAL) scanForSeqNum() error {
	var maxSeq uint64

	err := w.Replay(func(e Entry) error {
		if e.SeqNum > maxSeq {
			maxSeq = e.SeqNum
		}
		return nil
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	if maxSeq > w.seqNum {
		w.seqNum = maxSeq
		w.persistedSeq = maxSeq
	}
	w.mu.Unlock()
	return nil
}

// newReader wraps the raw file in the decompression layer matching the
// configured codec. Both codecs must cope with concatenated frames, since
// every open/clear cycle starts a fresh frame in the same file.
func (w *WAL) newReader(file io.Reader) (io.Reader, func(), error) {
	switch w.opts.Compression {
	case CompressionZSTD:
		// The zstd decoder consumes concatenated frames natively.
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, nil, fmt.Errorf("wal: failed to create zstd reader: %w", err)
		}
		return dec, dec.Close, nil

	case CompressionLZ4:
		src := bufio.NewReader(file)
		return &lz4FrameReader{src: src, zr: lz4.NewReader(src)}, func() {}, nil

	default:
		return file, func() {}, nil
	}
}

// lz4FrameReader reads across lz4 frame boundaries. The lz4 reader reports
// io.EOF at the end of each frame, so it is reset as long as the underlying
// file still has bytes.
type lz4FrameReader struct {
	src *bufio.Reader
	zr  *lz4.Reader
}

func (r *lz4FrameReader) Read(p []byte) (int, error) {
	for {
		n, err := r.zr.Read(p)
		if err == io.EOF {
			if _, peekErr := r.src.Peek(1); peekErr != nil {
				return n, io.EOF
			}
			r.zr.Reset(r.src)
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
