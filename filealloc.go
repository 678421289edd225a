package filealloc

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/hupe1980/filealloc/internal/backing"
	"github.com/hupe1980/filealloc/internal/guard"
	"github.com/hupe1980/filealloc/internal/mmap"
	"github.com/hupe1980/filealloc/internal/registry"
)

// Allocator is a memory allocator whose backing storage for every
// allocation is an individually created, memory-mapped file.
//
// All methods are safe to call concurrently from any number of goroutines.
type Allocator struct {
	opts         options
	store        *backing.Store
	reg          *registry.Registry
	guard        *guard.Guard
	interceptors []Interceptor
}

// New creates an Allocator. With no options, backing files go to a
// per-process directory under os.TempDir() and no collaborators are
// attached.
func New(optFns ...Option) (*Allocator, error) {
	opts := applyOptions(optFns)

	dir := opts.dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("filealloc-%d", os.Getpid()))
	}

	store, err := backing.NewStore(dir, opts.perm)
	if err != nil {
		return nil, translateError(err)
	}

	return &Allocator{
		opts:         opts,
		store:        store,
		reg:          registry.New(),
		guard:        guard.New(),
		interceptors: opts.interceptors,
	}, nil
}

// Dir returns the directory backing files are created in.
func (a *Allocator) Dir() string {
	return a.store.Dir()
}

// Alloc allocates memory for layout and returns the mapped bytes. The
// slice's length is the requested size; its capacity is the page-rounded
// mapped length.
//
// On the normal path the memory is backed by a fresh file and registered;
// while the calling goroutine is disabled or already inside allocator
// bookkeeping, the request is served by the fallback allocator instead. A
// backing store failure or an interceptor Deny surfaces as an error, never
// as silently different memory.
func (a *Allocator) Alloc(layout Layout) ([]byte, error) {
	start := time.Now()
	buf, mapped, err := a.alloc(layout)
	a.opts.metrics.RecordAlloc(mapped, time.Since(start), err)
	return buf, err
}

func (a *Allocator) alloc(layout Layout) (buf []byte, mapped bool, err error) {
	if err := layout.validate(); err != nil {
		return nil, false, err
	}

	if state := a.guard.State(); state != guard.Normal {
		a.opts.logger.LogFallbackAlloc(layout, state.String())
		return fallbackAlloc(layout), false, nil
	}

	// Everything below may allocate on its own behalf; route such
	// re-entrant requests to the fallback allocator.
	exit := a.guard.Enter()
	defer exit()

	mappedLen := int64(mmap.RoundUp(layout.Size))
	if !a.opts.controller.TryAcquireMapped(mappedLen) {
		return nil, true, fmt.Errorf("%w: %d bytes requested", ErrLimitExceeded, layout.Size)
	}

	res, err := a.store.Create(layout.Size)
	if err != nil {
		a.opts.controller.ReleaseMapped(mappedLen)
		err = translateError(err)
		a.opts.logger.LogAlloc(0, layout, "", err)
		return nil, true, err
	}

	addr := res.Base()
	a.reg.Insert(addr, res)

	ev := Event{Addr: addr, Layout: layout, Path: res.Path()}
	if a.dispatchAllocate(ev) == Deny {
		a.reg.Remove(addr)
		_ = res.Destroy()
		a.opts.controller.ReleaseMapped(mappedLen)
		a.opts.logger.LogDeny(addr, layout, ev.Path)
		return nil, true, fmt.Errorf("%w: %s", ErrDenied, ev.Path)
	}

	a.opts.logger.LogAlloc(addr, layout, res.Path(), nil)
	return res.Bytes()[:layout.Size:res.MappedLen()], true, nil
}

// Free deallocates buf, which must be a slice previously returned by Alloc
// or Realloc with the same layout. Memory the registry does not know about
// belongs to the fallback allocator and is handed back to the garbage
// collector untouched.
func (a *Allocator) Free(buf []byte, layout Layout) {
	start := time.Now()
	mapped := a.free(buf, layout)
	a.opts.metrics.RecordFree(mapped, time.Since(start))
}

func (a *Allocator) free(buf []byte, layout Layout) (mapped bool) {
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	if a.guard.State() != guard.Normal {
		// Guaranteed fallback memory: the normal path never served this
		// goroutine while disabled or re-entrant.
		return false
	}

	exit := a.guard.Enter()
	defer exit()

	// Remove under the write lock first so no lookup can observe a
	// torn-down resource as present.
	res, ok := a.reg.Remove(addr)
	if !ok {
		return false
	}

	ev := Event{Addr: addr, Layout: layout, Path: res.Path()}
	a.dispatchDeallocate(ev)

	mappedLen := int64(res.MappedLen())
	_ = res.Destroy()
	a.opts.controller.ReleaseMapped(mappedLen)

	a.opts.logger.LogFree(addr, layout, ev.Path)
	return true
}

// Realloc grows or shrinks an allocation to newLayout. For registered
// memory a fresh backing resource is created, the lesser of the old and
// new sizes is copied, and the old resource is torn down; bytes beyond the
// copied region are zero. Unregistered memory is reallocated on the
// fallback path.
//
// An interceptor Deny on the new resource fails the reallocation and
// leaves the old allocation fully intact.
func (a *Allocator) Realloc(buf []byte, oldLayout, newLayout Layout) ([]byte, error) {
	start := time.Now()
	next, mapped, err := a.realloc(buf, oldLayout, newLayout)
	a.opts.metrics.RecordRealloc(mapped, time.Since(start), err)
	return next, err
}

func (a *Allocator) realloc(buf []byte, oldLayout, newLayout Layout) (next []byte, mapped bool, err error) {
	if err := newLayout.validate(); err != nil {
		return nil, false, err
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	if a.guard.State() != guard.Normal {
		return fallbackRealloc(buf, oldLayout, newLayout), false, nil
	}

	exit := a.guard.Enter()
	defer exit()

	res, ok := a.reg.Lookup(addr)
	if !ok {
		return fallbackRealloc(buf, oldLayout, newLayout), false, nil
	}

	newMappedLen := int64(mmap.RoundUp(newLayout.Size))
	if !a.opts.controller.TryAcquireMapped(newMappedLen) {
		return nil, true, fmt.Errorf("%w: %d bytes requested", ErrLimitExceeded, newLayout.Size)
	}

	grown, err := a.store.Grow(res, newLayout.Size)
	if err != nil {
		a.opts.controller.ReleaseMapped(newMappedLen)
		err = translateError(err)
		a.opts.logger.LogRealloc(addr, 0, oldLayout, newLayout, err)
		return nil, true, err
	}

	newAddr := grown.Base()
	a.reg.Insert(newAddr, grown)

	evNew := Event{Addr: newAddr, Layout: newLayout, Path: grown.Path()}
	if a.dispatchAllocate(evNew) == Deny {
		a.reg.Remove(newAddr)
		_ = grown.Destroy()
		a.opts.controller.ReleaseMapped(newMappedLen)
		a.opts.logger.LogDeny(newAddr, newLayout, evNew.Path)
		return nil, true, fmt.Errorf("%w: %s", ErrDenied, evNew.Path)
	}

	evOld := Event{Addr: addr, Layout: oldLayout, Path: res.Path()}
	a.dispatchDeallocate(evOld)

	a.reg.Remove(addr)
	oldMappedLen := int64(res.MappedLen())
	_ = res.Destroy()
	a.opts.controller.ReleaseMapped(oldMappedLen)

	a.opts.logger.LogRealloc(addr, newAddr, oldLayout, newLayout, nil)
	return grown.Bytes()[:newLayout.Size:grown.MappedLen()], true, nil
}

// FileOf returns the backing file path of the allocation containing p.
// Interior pointers resolve to their allocation. Addresses the allocator
// does not manage return ErrNotFound.
func (a *Allocator) FileOf(p unsafe.Pointer) (string, error) {
	res, ok := a.reg.Find(uintptr(p))
	if !ok {
		return "", ErrNotFound
	}
	return res.Path(), nil
}

// DisableCurrentGoroutine routes every request of the calling goroutine to
// the fallback allocator until EnableCurrentGoroutine runs on the same
// goroutine. The allocator never clears this state on its own.
func (a *Allocator) DisableCurrentGoroutine() {
	a.guard.Disable()
}

// EnableCurrentGoroutine re-enables the file-backed path for the calling
// goroutine.
func (a *Allocator) EnableCurrentGoroutine() {
	a.guard.Enable()
}

// Live returns the number of live file-backed allocations.
func (a *Allocator) Live() int {
	return a.reg.Len()
}

// defaultAlloc is built lazily on first use so that allocations work from
// package init functions, before main runs, without an explicit setup call.
var defaultAlloc = sync.OnceValues(func() (*Allocator, error) {
	return New()
})

// Default returns the process-wide default allocator, creating it on first
// use.
func Default() (*Allocator, error) {
	return defaultAlloc()
}

// Alloc allocates from the default allocator.
func Alloc(layout Layout) ([]byte, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.Alloc(layout)
}

// Free deallocates buf on the default allocator.
func Free(buf []byte, layout Layout) {
	a, err := Default()
	if err != nil {
		return
	}
	a.Free(buf, layout)
}

// Realloc reallocates buf on the default allocator.
func Realloc(buf []byte, oldLayout, newLayout Layout) ([]byte, error) {
	a, err := Default()
	if err != nil {
		return nil, err
	}
	return a.Realloc(buf, oldLayout, newLayout)
}

// FileOf resolves p against the default allocator.
func FileOf(p unsafe.Pointer) (string, error) {
	a, err := Default()
	if err != nil {
		return "", err
	}
	return a.FileOf(p)
}

// DisableCurrentGoroutine disables the file-backed path of the default
// allocator for the calling goroutine.
func DisableCurrentGoroutine() {
	if a, err := Default(); err == nil {
		a.DisableCurrentGoroutine()
	}
}

// EnableCurrentGoroutine re-enables the file-backed path of the default
// allocator for the calling goroutine.
func EnableCurrentGoroutine() {
	if a, err := Default(); err == nil {
		a.EnableCurrentGoroutine()
	}
}
