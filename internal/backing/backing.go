// Package backing manages the per-allocation storage units of filealloc.
//
// Each allocation is backed by exactly one uniquely named file under the
// store's directory, created, mapped, grown and destroyed through this
// package. A Resource bundles the file, its mapping and the originally
// requested size.
//
// Resources are never reclaimed automatically: a resource that is still
// alive when the process dies leaves its file behind on purpose.
package backing

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/filealloc/internal/mmap"
)

// CreateError reports a failure to produce the backing file itself
// (creation, permission or disk-space trouble).
//
// The original underlying error can be accessed via errors.Unwrap.
type CreateError struct {
	Path  string
	cause error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("backing file create failed: %s", e.Path)
}

func (e *CreateError) Unwrap() error { return e.cause }

// MapError reports a failure to map an existing backing file into memory.
//
// The original underlying error can be accessed via errors.Unwrap.
type MapError struct {
	Path  string
	cause error
}

func (e *MapError) Error() string {
	return fmt.Sprintf("backing file map failed: %s", e.Path)
}

func (e *MapError) Unwrap() error { return e.cause }

// Resource is one allocation's storage unit: the backing file plus its live
// mapping and the size the caller actually asked for.
type Resource struct {
	path      string
	m         *mmap.Mapping
	size      int // requested size, before page rounding
	destroyed atomic.Bool
}

// Path returns the backing file's path.
func (r *Resource) Path() string { return r.path }

// Bytes returns the full mapped region (page-rounded length).
func (r *Resource) Bytes() []byte { return r.m.Bytes() }

// Base returns the mapped base address.
func (r *Resource) Base() uintptr {
	b := r.m.Bytes()
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Size returns the originally requested size.
func (r *Resource) Size() int { return r.size }

// MappedLen returns the mapped length (requested size rounded up to the
// mapping granularity).
func (r *Resource) MappedLen() int { return r.m.Size() }

// Sync flushes the mapped bytes to the backing file.
func (r *Resource) Sync() error { return r.m.Sync() }

// Destroy unmaps the region and deletes the backing file.
//
// Destroy must be called at most once per resource; a second call is a
// programming error and panics.
func (r *Resource) Destroy() error {
	if r.destroyed.Swap(true) {
		panic(fmt.Sprintf("backing: double destroy of %s", r.path))
	}
	err := r.m.Close()
	if rerr := os.Remove(r.path); err == nil {
		err = rerr
	}
	return err
}

// Store creates backing resources under a single directory, naming them
// from a monotonically increasing counter so that names never collide.
type Store struct {
	dir  string
	perm fs.FileMode
	seq  atomic.Uint64
}

// NewStore creates (if needed) the store directory and returns a Store
// writing backing files into it.
func NewStore(dir string, perm fs.FileMode) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &CreateError{Path: dir, cause: err}
	}
	return &Store{dir: dir, perm: perm}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) nextPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("alloc_%010d.mem", s.seq.Add(1)-1))
}

// Create allocates a new uniquely named backing file of at least size bytes
// (rounded up to the mapping granularity, minimum one page), maps it
// read-write and returns the resource.
func (s *Store) Create(size int) (*Resource, error) {
	path := s.nextPath()
	mappedLen := mmap.RoundUp(size)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, s.perm)
	if err != nil {
		return nil, &CreateError{Path: path, cause: err}
	}
	if err := f.Truncate(int64(mappedLen)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &CreateError{Path: path, cause: err}
	}

	m, err := mmap.Map(f, mappedLen)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, &MapError{Path: path, cause: err}
	}

	return &Resource{path: path, m: m, size: size}, nil
}

// Grow produces a fresh resource of newSize bytes and copies the lesser of
// the old and new sizes from the old mapping into the new one. The old
// resource is left untouched; the caller tears it down once it has switched
// over. Bytes beyond the copied region are zero (new backing files are
// created zero-filled).
func (s *Store) Grow(old *Resource, newSize int) (*Resource, error) {
	next, err := s.Create(newSize)
	if err != nil {
		return nil, err
	}

	n := old.size
	if newSize < n {
		n = newSize
	}
	copy(next.Bytes()[:n], old.Bytes()[:n])

	return next, nil
}
