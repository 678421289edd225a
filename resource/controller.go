// Package resource enforces process-wide limits on filealloc.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MappedLimitBytes is the hard limit for mapped backing memory.
	// If 0, no hard limit is enforced (only tracking).
	MappedLimitBytes int64

	// MaxArchiveWorkers is the maximum number of concurrent archive uploads.
	// If 0, defaults to 1.
	MaxArchiveWorkers int64

	// IOLimitBytesPerSec is the maximum IO throughput for archive writes.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller manages global resources (mapped memory, archive concurrency
// and IO). A nil *Controller is valid and enforces nothing.
type Controller struct {
	cfg Config

	// Mapped memory
	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	// Archive concurrency
	archiveSem *semaphore.Weighted

	// IO
	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxArchiveWorkers <= 0 {
		cfg.MaxArchiveWorkers = 1
	}

	c := &Controller{
		cfg:        cfg,
		archiveSem: semaphore.NewWeighted(cfg.MaxArchiveWorkers),
	}

	if cfg.MappedLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MappedLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// TryAcquireMapped attempts to reserve mapped memory without blocking.
// Returns true if acquired, false if the limit would be exceeded. The
// allocation path must not block on the budget: a full budget is an
// out-of-memory condition, not a queue.
func (c *Controller) TryAcquireMapped(bytes int64) bool {
	if c == nil {
		return true
	}
	if bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMapped releases reserved mapped memory.
func (c *Controller) ReleaseMapped(bytes int64) {
	if c == nil {
		return
	}
	if bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MappedUsage returns the currently reserved mapped memory in bytes.
func (c *Controller) MappedUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireArchiveWorker blocks until an archive worker slot is available or
// ctx is canceled.
func (c *Controller) AcquireArchiveWorker(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.archiveSem.Acquire(ctx, 1)
}

// ReleaseArchiveWorker releases an archive worker slot.
func (c *Controller) ReleaseArchiveWorker() {
	if c == nil {
		return
	}
	c.archiveSem.Release(1)
}

// WaitIO blocks until the IO rate limiter admits bytes more of throughput.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil || bytes <= 0 {
		return nil
	}

	// rate.Limiter caps a single WaitN at its burst; feed it in chunks.
	burst := c.ioLimiter.Burst()
	for bytes > 0 {
		n := bytes
		if n > burst {
			n = burst
		}
		if err := c.ioLimiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
