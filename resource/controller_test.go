package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNilControllerEnforcesNothing(t *testing.T) {
	var c *Controller

	require.True(t, c.TryAcquireMapped(1<<40))
	c.ReleaseMapped(1 << 40)
	require.Zero(t, c.MappedUsage())
	require.NoError(t, c.AcquireArchiveWorker(context.Background()))
	c.ReleaseArchiveWorker()
	require.NoError(t, c.WaitIO(context.Background(), 1<<30))
}

func TestMappedBudget(t *testing.T) {
	c := NewController(Config{MappedLimitBytes: 8192})

	require.True(t, c.TryAcquireMapped(4096))
	require.True(t, c.TryAcquireMapped(4096))
	require.Equal(t, int64(8192), c.MappedUsage())

	// Budget exhausted.
	require.False(t, c.TryAcquireMapped(1))

	c.ReleaseMapped(4096)
	require.Equal(t, int64(4096), c.MappedUsage())
	require.True(t, c.TryAcquireMapped(4096))
}

func TestMappedTrackingWithoutLimit(t *testing.T) {
	c := NewController(Config{})

	require.True(t, c.TryAcquireMapped(1<<40))
	require.Equal(t, int64(1<<40), c.MappedUsage())
	c.ReleaseMapped(1 << 40)
	require.Zero(t, c.MappedUsage())
}

func TestArchiveWorkers(t *testing.T) {
	c := NewController(Config{MaxArchiveWorkers: 1})

	require.NoError(t, c.AcquireArchiveWorker(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, c.AcquireArchiveWorker(ctx), "second worker must block until release")

	c.ReleaseArchiveWorker()
	require.NoError(t, c.AcquireArchiveWorker(context.Background()))
	c.ReleaseArchiveWorker()
}

func TestWaitIOChunksLargeWrites(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Larger than burst; must not error out.
	require.NoError(t, c.WaitIO(context.Background(), (1<<20)+1234))
}
