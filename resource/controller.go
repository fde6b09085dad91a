// Package resource bounds what writers may hold: the bytes of pending
// write batches, the number of concurrent compactions and the blob write
// throughput of flushes. A nil *Controller imposes no limits.
package resource

import (
	"context"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits. Zero values mean unlimited, except
// Compactions which defaults to 1.
type Config struct {
	// PendingBytes caps the approximate size of all unflushed batches.
	PendingBytes int64
	// Compactions caps concurrent shard compactions.
	Compactions int64
	// WriteBytesPerSec caps blob write throughput.
	WriteBytesPerSec int64
}

// Controller is shared by every writer opened with it.
type Controller struct {
	cfg Config

	pendingSem *semaphore.Weighted // nil if unlimited
	pending    atomic.Int64

	compactSem *semaphore.Weighted
	compacting atomic.Int64

	writes *rate.Limiter // nil if unlimited
}

// NewController creates a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	if cfg.Compactions <= 0 {
		cfg.Compactions = 1
	}
	c := &Controller{
		cfg:        cfg,
		compactSem: semaphore.NewWeighted(cfg.Compactions),
	}
	if cfg.PendingBytes > 0 {
		c.pendingSem = semaphore.NewWeighted(cfg.PendingBytes)
	}
	if cfg.WriteBytesPerSec > 0 {
		c.writes = rate.NewLimiter(rate.Limit(cfg.WriteBytesPerSec), int(cfg.WriteBytesPerSec))
	}
	return c
}

// Reserve accounts n more pending bytes. It reports false, reserving
// nothing, when the budget would be exceeded; the writer should flush.
func (c *Controller) Reserve(n int64) bool {
	if c == nil || n <= 0 {
		return true
	}
	if c.pendingSem != nil && !c.pendingSem.TryAcquire(n) {
		return false
	}
	c.pending.Add(n)
	return true
}

// Release returns n reserved bytes.
func (c *Controller) Release(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.pendingSem != nil {
		c.pendingSem.Release(n)
	}
	c.pending.Add(-n)
}

// Pending returns the reserved bytes.
func (c *Controller) Pending() int64 {
	if c == nil {
		return 0
	}
	return c.pending.Load()
}

// PendingLimit returns the pending byte budget, 0 if unlimited.
func (c *Controller) PendingLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.PendingBytes
}

// StartCompaction claims a compaction slot without waiting. done must be
// called once the compaction finished.
func (c *Controller) StartCompaction() (done func(), ok bool) {
	if c == nil {
		return func() {}, true
	}
	if !c.compactSem.TryAcquire(1) {
		return nil, false
	}
	c.compacting.Add(1)

	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			c.compacting.Add(-1)
			c.compactSem.Release(1)
		}
	}, true
}

// Compacting returns the number of running compactions.
func (c *Controller) Compacting() int64 {
	if c == nil {
		return 0
	}
	return c.compacting.Load()
}

// Throttle waits until n more bytes may be written. Requests above the
// per-second burst are split.
func (c *Controller) Throttle(ctx context.Context, n int) error {
	if c == nil || c.writes == nil {
		return nil
	}
	burst := c.writes.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.writes.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Writer returns w throttled by c.
func (c *Controller) Writer(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.writes == nil {
		return w
	}
	return &throttledWriter{ctx: ctx, w: w, c: c}
}

type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if err := t.c.Throttle(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}
