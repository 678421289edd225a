package mmap

import (
	"os"
	"sync/atomic"
)

// Mapping represents a writable memory-mapped file.
// It owns the underlying byte slice and the file handle and is responsible
// for unmapping and closing both.
type Mapping struct {
	data   []byte
	file   *os.File
	size   int
	closed atomic.Bool
	// unmap is the platform-specific function to unmap the memory.
	unmap func([]byte) error
}

// PageSize returns the mapping granularity of the platform.
func PageSize() int {
	return os.Getpagesize()
}

// RoundUp rounds size up to the next multiple of the mapping granularity.
// A size of zero still occupies one page: a mapping of length zero is not
// representable, and filealloc hands out a distinct page even for empty
// layouts.
func RoundUp(size int) int {
	page := PageSize()
	if size <= 0 {
		return page
	}
	return (size + page - 1) &^ (page - 1)
}

// Map maps size bytes of f shared and writable. The file must already be at
// least size bytes long; size must be a positive multiple of PageSize.
//
// On success the Mapping takes ownership of f and closes it on Close.
func Map(f *os.File, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	data, unmapFunc, err := osMapRW(f, size)
	if err != nil {
		return nil, err
	}

	return &Mapping{
		data:  data,
		file:  f,
		size:  size,
		unmap: unmapFunc,
	}, nil
}

// Close unmaps the memory and closes the file handle. It is idempotent.
// The mapping is unmapped before the file handle is closed.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil // Already closed
	}
	var err error
	if m.unmap != nil && m.data != nil {
		err = m.unmap(m.data)
	}
	if m.file != nil {
		if cerr := m.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Bytes returns the underlying byte slice.
// Warning: The slice is valid only until Close() is called.
// Accessing the slice after Close() results in undefined behavior (likely a crash).
func (m *Mapping) Bytes() []byte {
	if m.closed.Load() {
		return nil
	}
	return m.data
}

// Size returns the size of the mapping in bytes.
func (m *Mapping) Size() int {
	return m.size
}

// Sync flushes mapped pages back to the backing file.
func (m *Mapping) Sync() error {
	if m.closed.Load() {
		return ErrClosed
	}
	return osSync(m.data)
}
