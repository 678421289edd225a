package filealloc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/filealloc/resource"
)

func newTestAllocator(t *testing.T, optFns ...Option) *Allocator {
	t.Helper()

	opts := append([]Option{WithDir(t.TempDir())}, optFns...)
	a, err := New(opts...)
	require.NoError(t, err)
	return a
}

func mustLayout(t *testing.T, size, align int) Layout {
	t.Helper()

	l, err := NewLayout(size, align)
	require.NoError(t, err)
	return l
}

func TestAllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 16, 8)

	buf, err := a.Alloc(layout)
	require.NoError(t, err)
	require.Len(t, buf, 16)
	require.Equal(t, 1, a.Live())

	path, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.Size(), int64(16))

	a.Free(buf, layout)
	assert.Equal(t, 0, a.Live())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAllocWritesReachTheFile(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 16, 8)

	buf, err := a.Alloc(layout)
	require.NoError(t, err)
	defer a.Free(buf, layout)

	pattern := []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	copy(buf, pattern)

	path, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
	require.NoError(t, err)

	// The mapping is shared, so the file holds the live bytes.
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(contents[:16], pattern))
}

func TestAllocNamesAreSequential(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 8, 8)

	buf1, err := a.Alloc(layout)
	require.NoError(t, err)
	buf2, err := a.Alloc(layout)
	require.NoError(t, err)
	defer a.Free(buf1, layout)
	defer a.Free(buf2, layout)

	p1, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf1)))
	require.NoError(t, err)
	p2, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf2)))
	require.NoError(t, err)

	assert.Equal(t, "alloc_0000000000.mem", filepath.Base(p1))
	assert.Equal(t, "alloc_0000000001.mem", filepath.Base(p2))
}

func TestFreeUnmanagedMemory(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a := newTestAllocator(t, WithMetricsCollector(metrics))

	// Memory the registry never saw belongs to the fallback path.
	foreign := make([]byte, 32)
	a.Free(foreign, mustLayout(t, 32, 8))

	assert.Equal(t, int64(1), metrics.FallbackFreeCount.Load())
	assert.Equal(t, 0, a.Live())
}

func TestConcurrentAllocationsAreDistinct(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 64, 8)

	const n = 32

	var mu sync.Mutex
	bufs := make([][]byte, 0, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			buf, err := a.Alloc(layout)
			if err != nil {
				return err
			}
			mu.Lock()
			bufs = append(bufs, buf)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Equal(t, n, a.Live())

	addrs := make(map[uintptr]struct{}, n)
	paths := make(map[string]struct{}, n)
	for _, buf := range bufs {
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
		addrs[addr] = struct{}{}

		path, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
		require.NoError(t, err)
		paths[path] = struct{}{}
	}
	assert.Len(t, addrs, n)
	assert.Len(t, paths, n)

	for _, buf := range bufs {
		a.Free(buf, layout)
	}
	assert.Equal(t, 0, a.Live())
}

func TestDisabledGoroutineUsesFallback(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a := newTestAllocator(t, WithMetricsCollector(metrics))
	layout := mustLayout(t, 16, 8)

	a.DisableCurrentGoroutine()
	buf, err := a.Alloc(layout)
	require.NoError(t, err)
	require.Len(t, buf, 16)

	assert.Equal(t, 0, a.Live())
	assert.Equal(t, int64(1), metrics.FallbackAllocCount.Load())

	_, err = a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
	assert.ErrorIs(t, err, ErrNotFound)

	a.Free(buf, layout)
	a.EnableCurrentGoroutine()

	// Back to the file-backed path.
	buf2, err := a.Alloc(layout)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Live())
	a.Free(buf2, layout)
}

// reentrantInterceptor allocates from inside the allocation hook.
type reentrantInterceptor struct {
	alloc *Allocator
	inner [][]byte
}

func (ri *reentrantInterceptor) OnAllocate(ev Event) Decision {
	buf, err := ri.alloc.Alloc(Layout{Size: 8, Align: 8})
	if err != nil {
		return Deny
	}
	ri.inner = append(ri.inner, buf)
	return Allow
}

func (ri *reentrantInterceptor) OnDeallocate(ev Event) {}

func TestInterceptorAllocationIsServedByFallback(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	ri := &reentrantInterceptor{}

	a := newTestAllocator(t, WithMetricsCollector(metrics), WithInterceptor(ri))
	ri.alloc = a

	layout := mustLayout(t, 16, 8)
	buf, err := a.Alloc(layout)
	require.NoError(t, err)

	// Only the outer allocation is file-backed.
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, int64(1), metrics.FallbackAllocCount.Load())
	require.Len(t, ri.inner, 1)

	a.Free(buf, layout)
	assert.Equal(t, 0, a.Live())
}

func TestFileOf(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 64, 8)

	buf, err := a.Alloc(layout)
	require.NoError(t, err)

	base := unsafe.Pointer(unsafe.SliceData(buf))
	path, err := a.FileOf(base)
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	// Interior pointers resolve to the containing allocation.
	interior := unsafe.Pointer(unsafe.SliceData(buf[17:]))
	got, err := a.FileOf(interior)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	a.Free(buf, layout)

	_, err = a.FileOf(base)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReallocGrowPreservesPrefixAndZeroes(t *testing.T) {
	a := newTestAllocator(t)
	oldLayout := mustLayout(t, 16, 8)
	newLayout := mustLayout(t, 64, 8)

	buf, err := a.Alloc(oldLayout)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	oldPath, err := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
	require.NoError(t, err)

	next, err := a.Realloc(buf, oldLayout, newLayout)
	require.NoError(t, err)
	require.Len(t, next, 64)

	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i+1), next[i], "prefix byte %d", i)
	}
	for i := 16; i < 64; i++ {
		assert.Equal(t, byte(0), next[i], "grown byte %d", i)
	}

	// Exactly one live allocation remains and the old file is gone.
	assert.Equal(t, 1, a.Live())
	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))

	a.Free(next, newLayout)
	assert.Equal(t, 0, a.Live())
}

func TestReallocShrink(t *testing.T) {
	a := newTestAllocator(t)
	oldLayout := mustLayout(t, 64, 8)
	newLayout := mustLayout(t, 16, 8)

	buf, err := a.Alloc(oldLayout)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = byte(i + 1)
	}

	next, err := a.Realloc(buf, oldLayout, newLayout)
	require.NoError(t, err)
	require.Len(t, next, 16)

	for i := 0; i < 16; i++ {
		assert.Equal(t, byte(i+1), next[i])
	}

	a.Free(next, newLayout)
}

func TestReallocUnmanagedMemoryUsesFallback(t *testing.T) {
	metrics := &BasicMetricsCollector{}
	a := newTestAllocator(t, WithMetricsCollector(metrics))

	foreign := []byte{1, 2, 3, 4}
	next, err := a.Realloc(foreign, mustLayout(t, 4, 1), mustLayout(t, 8, 1))
	require.NoError(t, err)
	require.Len(t, next, 8)
	assert.Equal(t, []byte{1, 2, 3, 4}, next[:4])
	assert.Equal(t, int64(1), metrics.FallbackReallocCount.Load())
	assert.Equal(t, 0, a.Live())
}

// denyAll vetoes every allocation.
type denyAll struct{}

func (denyAll) OnAllocate(Event) Decision { return Deny }
func (denyAll) OnDeallocate(Event)        {}

func TestDenyLeavesNothingBehind(t *testing.T) {
	dir := t.TempDir()
	a, err := New(WithDir(dir), WithInterceptor(denyAll{}))
	require.NoError(t, err)

	_, err = a.Alloc(mustLayout(t, 16, 8))
	require.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, 0, a.Live())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "denied allocation must not leave a file")
}

func TestDenyDuringReallocKeepsOldAllocation(t *testing.T) {
	var deny bool

	a := newTestAllocator(t, WithInterceptor(funcInterceptor{
		onAllocate: func(Event) Decision {
			if deny {
				return Deny
			}
			return Allow
		},
	}))

	oldLayout := mustLayout(t, 16, 8)
	buf, err := a.Alloc(oldLayout)
	require.NoError(t, err)
	copy(buf, "original")

	deny = true
	_, err = a.Realloc(buf, oldLayout, mustLayout(t, 64, 8))
	require.ErrorIs(t, err, ErrDenied)

	// The old allocation is untouched.
	assert.Equal(t, 1, a.Live())
	assert.Equal(t, "original", string(buf[:8]))

	deny = false
	a.Free(buf, oldLayout)
}

// funcInterceptor adapts plain funcs to the Interceptor interface.
type funcInterceptor struct {
	onAllocate   func(Event) Decision
	onDeallocate func(Event)
}

func (f funcInterceptor) OnAllocate(ev Event) Decision {
	if f.onAllocate == nil {
		return Allow
	}
	return f.onAllocate(ev)
}

func (f funcInterceptor) OnDeallocate(ev Event) {
	if f.onDeallocate != nil {
		f.onDeallocate(ev)
	}
}

func TestZeroSizeAllocationsAreDistinct(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 0, 1)

	buf1, err := a.Alloc(layout)
	require.NoError(t, err)
	buf2, err := a.Alloc(layout)
	require.NoError(t, err)

	require.Len(t, buf1, 0)
	require.Len(t, buf2, 0)

	addr1 := uintptr(unsafe.Pointer(unsafe.SliceData(buf1)))
	addr2 := uintptr(unsafe.Pointer(unsafe.SliceData(buf2)))
	assert.NotZero(t, addr1)
	assert.NotZero(t, addr2)
	assert.NotEqual(t, addr1, addr2)
	assert.Equal(t, 2, a.Live())

	a.Free(buf1, layout)
	a.Free(buf2, layout)
	assert.Equal(t, 0, a.Live())
}

func TestAllocInvalidLayout(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.Alloc(Layout{Size: -1, Align: 8})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = a.Alloc(Layout{Size: 8, Align: 3})
	assert.ErrorIs(t, err, ErrInvalidLayout)

	_, err = a.Alloc(Layout{Size: 8, Align: 0})
	assert.ErrorIs(t, err, ErrInvalidLayout)
}

func TestNewLayout(t *testing.T) {
	_, err := NewLayout(8, 3)
	assert.ErrorIs(t, err, ErrInvalidLayout)

	l, err := NewLayout(8, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, l.Size)
	assert.Equal(t, 8, l.Align)
}

func TestLayoutOf(t *testing.T) {
	l := LayoutOf[uint64]()
	assert.Equal(t, 8, l.Size)
	assert.Equal(t, 8, l.Align)
}

func TestStateAndSummary(t *testing.T) {
	a := newTestAllocator(t)
	layout := mustLayout(t, 32, 8)

	var bufs [][]byte
	for i := 0; i < 3; i++ {
		buf, err := a.Alloc(layout)
		require.NoError(t, err)
		bufs = append(bufs, buf)
	}

	state := a.State()
	require.Len(t, state, 3)
	assert.True(t, sort.SliceIsSorted(state, func(i, j int) bool {
		return state[i].Addr < state[j].Addr
	}), "state must be ordered by address")

	summary := a.Summary()
	assert.True(t, strings.HasPrefix(summary, "filealloc state:\n"))
	for _, alloc := range state {
		assert.Contains(t, summary, alloc.Path)
		assert.Contains(t, summary, fmt.Sprintf("0x%08x", alloc.Addr))
	}

	for _, buf := range bufs {
		a.Free(buf, layout)
	}
	assert.Equal(t, "filealloc state:\n", a.Summary())
}

func TestMappedBudgetExhaustion(t *testing.T) {
	rc := resource.NewController(resource.Config{
		MappedLimitBytes: 64 * 1024,
	})
	a := newTestAllocator(t, WithResourceController(rc))

	// One allocation eats the whole budget.
	layout := mustLayout(t, 64*1024, 8)
	buf, err := a.Alloc(layout)
	require.NoError(t, err)

	_, err = a.Alloc(mustLayout(t, 16, 8))
	require.ErrorIs(t, err, ErrLimitExceeded)

	// Freeing returns the budget.
	a.Free(buf, layout)

	buf2, err := a.Alloc(mustLayout(t, 16, 8))
	require.NoError(t, err)
	a.Free(buf2, mustLayout(t, 16, 8))
}

func TestDefaultAllocator(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)

	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)

	layout := mustLayout(t, 16, 8)
	buf, err := Alloc(layout)
	require.NoError(t, err)

	path, err := FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	Free(buf, layout)

	DisableCurrentGoroutine()
	fb, err := Alloc(layout)
	require.NoError(t, err)
	_, err = FileOf(unsafe.Pointer(unsafe.SliceData(fb)))
	assert.ErrorIs(t, err, ErrNotFound)
	Free(fb, layout)
	EnableCurrentGoroutine()
}
