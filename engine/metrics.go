package engine

import "time"

// MetricsObserver receives writer and compaction events. Implementations
// must be safe for concurrent use; shards of one database share one.
type MetricsObserver interface {
	// OnFlush reports a flush of ops buffered modifications.
	OnFlush(d time.Duration, ops int, err error)
	// OnTransaction reports "begin", "commit" or "cancel".
	OnTransaction(event string, err error)
	// OnCompaction reports folding segments into a base holding docs.
	OnCompaction(d time.Duration, segments int, docs int, err error)
	// OnQueueDepth reports the length of the named queue.
	OnQueueDepth(name string, depth int)
	// OnThroughput adds bytes to the named counter.
	OnThroughput(name string, bytes int64)
}

// NoopMetricsObserver ignores every event. Embed it to observe a subset.
type NoopMetricsObserver struct{}

func (NoopMetricsObserver) OnFlush(time.Duration, int, error)           {}
func (NoopMetricsObserver) OnTransaction(string, error)                 {}
func (NoopMetricsObserver) OnCompaction(time.Duration, int, int, error) {}
func (NoopMetricsObserver) OnQueueDepth(string, int)                    {}
func (NoopMetricsObserver) OnThroughput(string, int64)                  {}
