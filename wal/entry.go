package wal

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Op is the logged operation type.
type Op string

const (
	// OpPut records an insert or overwrite.
	OpPut Op = "PUT"
	// OpDelete records a tombstone write.
	OpDelete Op = "DELETE"
)

// Entry is a single write-ahead log record. Entries are append-only and never
// mutated once written.
type Entry struct {
	Op        Op
	Key       string
	Value     string
	Timestamp int64 // microseconds since epoch
	SeqNum    uint64
}

// encode renders the entry as one log line:
//
//	operation,key,value,timestamp,sequence
//
// Key and value are percent-escaped so the five comma-separated fields stay
// unambiguous for arbitrary payloads.
func (e Entry) encode() string {
	return fmt.Sprintf("%s,%s,%s,%d,%d",
		e.Op,
		url.QueryEscape(e.Key),
		url.QueryEscape(e.Value),
		e.Timestamp,
		e.SeqNum,
	)
}

// parseEntry decodes one log line.
func parseEntry(line string) (Entry, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 5 {
		return Entry{}, fmt.Errorf("wal: malformed record: expected 5 fields, got %d", len(parts))
	}

	op := Op(parts[0])
	if op != OpPut && op != OpDelete {
		return Entry{}, fmt.Errorf("wal: malformed record: unknown operation %q", parts[0])
	}

	key, err := url.QueryUnescape(parts[1])
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed record: bad key: %w", err)
	}
	value, err := url.QueryUnescape(parts[2])
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed record: bad value: %w", err)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed record: bad timestamp: %w", err)
	}
	seq, err := strconv.ParseUint(parts[4], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("wal: malformed record: bad sequence: %w", err)
	}

	return Entry{Op: op, Key: key, Value: value, Timestamp: ts, SeqNum: seq}, nil
}
