// Package mmap provides read-write memory-mapped file access.
//
// # Overview
//
// Every allocation served by filealloc lives inside its own backing file.
// This package is the primitive that turns such a file into addressable
// process memory: it maps an already-sized file shared and writable, and
// tears the mapping down again.
//
// # Usage
//
//	f, _ := os.OpenFile("alloc_0000000001.mem", os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
//	f.Truncate(int64(mmap.RoundUp(16)))
//
//	m, err := mmap.Map(f, mmap.RoundUp(16))
//	if err != nil { ... }
//	defer m.Close() // unmaps and closes f
//
//	// Writes to data are visible in the file and vice versa.
//	data := m.Bytes()
//
// # Platform Support
//
// The package provides a unified API across platforms:
//
//   - Unix (Linux, macOS, BSD): Uses mmap(2) with MAP_SHARED
//   - Windows: Uses CreateFileMapping/MapViewOfFile with PAGE_READWRITE
//
// # Thread Safety
//
// A Mapping is safe for concurrent read access. Close is idempotent and
// protected by atomic operations, but callers must ensure no goroutine
// touches Bytes() after Close returns.
package mmap
