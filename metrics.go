package shardex

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/shardex/engine"
)

// MetricsCollector receives operational events from writers and shards.
// Implement this interface to integrate with monitoring systems; the
// metric package provides a Prometheus implementation.
type MetricsCollector = engine.MetricsObserver

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) OnFlush(time.Duration, int, error)           {}
func (NoopMetricsCollector) OnTransaction(string, error)                 {}
func (NoopMetricsCollector) OnCompaction(time.Duration, int, int, error) {}
func (NoopMetricsCollector) OnQueueDepth(string, int)                    {}
func (NoopMetricsCollector) OnThroughput(string, int64)                  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FlushCount       atomic.Int64
	FlushErrors      atomic.Int64
	FlushOps         atomic.Int64
	FlushTotalNanos  atomic.Int64
	TxBegin          atomic.Int64
	TxCommit         atomic.Int64
	TxCancel         atomic.Int64
	TxErrors         atomic.Int64
	CompactionCount  atomic.Int64
	CompactionErrors atomic.Int64
	PendingOps       atomic.Int64
	BytesWritten     atomic.Int64
}

// OnFlush implements MetricsCollector.
func (b *BasicMetricsCollector) OnFlush(duration time.Duration, ops int, err error) {
	b.FlushCount.Add(1)
	b.FlushTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushOps.Add(int64(ops))
}

// OnTransaction implements MetricsCollector.
func (b *BasicMetricsCollector) OnTransaction(event string, err error) {
	if err != nil {
		b.TxErrors.Add(1)
		return
	}
	switch event {
	case "begin":
		b.TxBegin.Add(1)
	case "commit":
		b.TxCommit.Add(1)
	case "cancel":
		b.TxCancel.Add(1)
	}
}

// OnCompaction implements MetricsCollector.
func (b *BasicMetricsCollector) OnCompaction(_ time.Duration, _ int, _ int, err error) {
	b.CompactionCount.Add(1)
	if err != nil {
		b.CompactionErrors.Add(1)
	}
}

// OnQueueDepth implements MetricsCollector.
func (b *BasicMetricsCollector) OnQueueDepth(_ string, depth int) {
	b.PendingOps.Store(int64(depth))
}

// OnThroughput implements MetricsCollector.
func (b *BasicMetricsCollector) OnThroughput(_ string, bytes int64) {
	b.BytesWritten.Add(bytes)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FlushCount:       b.FlushCount.Load(),
		FlushErrors:      b.FlushErrors.Load(),
		FlushOps:         b.FlushOps.Load(),
		FlushAvgNanos:    b.getAvgFlushNanos(),
		TxBegin:          b.TxBegin.Load(),
		TxCommit:         b.TxCommit.Load(),
		TxCancel:         b.TxCancel.Load(),
		TxErrors:         b.TxErrors.Load(),
		CompactionCount:  b.CompactionCount.Load(),
		CompactionErrors: b.CompactionErrors.Load(),
		PendingOps:       b.PendingOps.Load(),
		BytesWritten:     b.BytesWritten.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFlushNanos() int64 {
	count := b.FlushCount.Load()
	if count == 0 {
		return 0
	}
	return b.FlushTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FlushCount       int64
	FlushErrors      int64
	FlushOps         int64
	FlushAvgNanos    int64
	TxBegin          int64
	TxCommit         int64
	TxCancel         int64
	TxErrors         int64
	CompactionCount  int64
	CompactionErrors int64
	PendingOps       int64
	BytesWritten     int64
}
