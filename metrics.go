package lsmkv

import (
	"errors"
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational metrics. Implement it to feed a
// monitoring system; BasicMetricsCollector is an in-memory implementation
// for debugging and tests.
type MetricsCollector interface {
	// RecordPut is called after each put. err is nil on success.
	RecordPut(duration time.Duration, err error)

	// RecordGet is called after each get. A miss carries ErrNotFound.
	RecordGet(duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(duration time.Duration, err error)

	// RecordRangeQuery is called after each range query.
	RecordRangeQuery(duration time.Duration, err error)

	// RecordFlush is called after each explicit flush.
	RecordFlush(duration time.Duration, err error)

	// RecordRecovery is called once after startup replay with the number
	// of replayed records.
	RecordRecovery(replayed int, duration time.Duration)

	// RecordDurabilityWarning is called when a WAL append fails and the
	// operation proceeds without its log record.
	RecordDurabilityWarning()
}

// NoopMetricsCollector discards all metrics.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordPut(time.Duration, error)        {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)        {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)     {}
func (NoopMetricsCollector) RecordRangeQuery(time.Duration, error) {}
func (NoopMetricsCollector) RecordFlush(time.Duration, error)      {}
func (NoopMetricsCollector) RecordRecovery(int, time.Duration)     {}
func (NoopMetricsCollector) RecordDurabilityWarning()              {}

// BasicMetricsCollector keeps simple atomic counters.
type BasicMetricsCollector struct {
	PutCount            atomic.Int64
	PutErrors           atomic.Int64
	GetCount            atomic.Int64
	GetMisses           atomic.Int64
	GetErrors           atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
	RangeQueryCount     atomic.Int64
	RangeQueryErrors    atomic.Int64
	FlushCount          atomic.Int64
	FlushErrors         atomic.Int64
	RecoveredRecords    atomic.Int64
	DurabilityWarnings  atomic.Int64
}

func (c *BasicMetricsCollector) RecordPut(_ time.Duration, err error) {
	c.PutCount.Add(1)
	if err != nil {
		c.PutErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordGet(_ time.Duration, err error) {
	c.GetCount.Add(1)
	switch {
	case errors.Is(err, ErrNotFound):
		c.GetMisses.Add(1)
	case err != nil:
		c.GetErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	c.DeleteCount.Add(1)
	if err != nil {
		c.DeleteErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordRangeQuery(_ time.Duration, err error) {
	c.RangeQueryCount.Add(1)
	if err != nil {
		c.RangeQueryErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordFlush(_ time.Duration, err error) {
	c.FlushCount.Add(1)
	if err != nil {
		c.FlushErrors.Add(1)
	}
}

func (c *BasicMetricsCollector) RecordRecovery(replayed int, _ time.Duration) {
	c.RecoveredRecords.Add(int64(replayed))
}

func (c *BasicMetricsCollector) RecordDurabilityWarning() {
	c.DurabilityWarnings.Add(1)
}

// Snapshot returns the current counter values.
func (c *BasicMetricsCollector) Snapshot() map[string]int64 {
	return map[string]int64{
		"put_count":           c.PutCount.Load(),
		"put_errors":          c.PutErrors.Load(),
		"get_count":           c.GetCount.Load(),
		"get_misses":          c.GetMisses.Load(),
		"get_errors":          c.GetErrors.Load(),
		"delete_count":        c.DeleteCount.Load(),
		"delete_errors":       c.DeleteErrors.Load(),
		"range_query_count":   c.RangeQueryCount.Load(),
		"range_query_errors":  c.RangeQueryErrors.Load(),
		"flush_count":         c.FlushCount.Load(),
		"flush_errors":        c.FlushErrors.Load(),
		"recovered_records":   c.RecoveredRecords.Load(),
		"durability_warnings": c.DurabilityWarnings.Load(),
	}
}
