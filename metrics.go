package filealloc

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordAlloc is called after each allocation attempt.
	// mapped is true when the file-backed path served the request,
	// false when it was routed to the fallback allocator.
	RecordAlloc(mapped bool, duration time.Duration, err error)

	// RecordFree is called after each deallocation.
	RecordFree(mapped bool, duration time.Duration)

	// RecordRealloc is called after each reallocation attempt.
	RecordRealloc(mapped bool, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(bool, time.Duration, error)   {}
func (NoopMetricsCollector) RecordFree(bool, time.Duration)           {}
func (NoopMetricsCollector) RecordRealloc(bool, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocCount           atomic.Int64
	AllocErrors          atomic.Int64
	AllocTotalNanos      atomic.Int64
	FallbackAllocCount   atomic.Int64
	FreeCount            atomic.Int64
	FallbackFreeCount    atomic.Int64
	ReallocCount         atomic.Int64
	ReallocErrors        atomic.Int64
	FallbackReallocCount atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(mapped bool, duration time.Duration, err error) {
	b.AllocCount.Add(1)
	b.AllocTotalNanos.Add(duration.Nanoseconds())
	if !mapped {
		b.FallbackAllocCount.Add(1)
	}
	if err != nil {
		b.AllocErrors.Add(1)
	}
}

// RecordFree implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFree(mapped bool, duration time.Duration) {
	b.FreeCount.Add(1)
	if !mapped {
		b.FallbackFreeCount.Add(1)
	}
}

// RecordRealloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRealloc(mapped bool, duration time.Duration, err error) {
	b.ReallocCount.Add(1)
	if !mapped {
		b.FallbackReallocCount.Add(1)
	}
	if err != nil {
		b.ReallocErrors.Add(1)
	}
}
