// Package filealloc provides a memory allocator that backs every single
// allocation with its own memory-mapped file.
//
// This is deliberately not a fast allocator: creating a file per allocation
// dominates the cost of every request. What it buys is that the raw bytes
// of any live allocation can be inspected, persisted and even mutated from
// outside the process by opening the corresponding file. The engineering
// value lies in staying correct under reentrancy and concurrency, not in
// throughput.
//
// # Quick Start
//
//	a, err := filealloc.New()
//	if err != nil {
//	    panic(err)
//	}
//
//	layout, _ := filealloc.NewLayout(16, 8)
//	buf, err := a.Alloc(layout)
//	if err != nil {
//	    panic(err)
//	}
//
//	path, _ := a.FileOf(unsafe.Pointer(unsafe.SliceData(buf)))
//	fmt.Println("these 16 bytes live in", path)
//
//	a.Free(buf, layout)
//
// A process-wide default allocator is built lazily on first use, so the
// package-level Alloc/Free/Realloc/FileOf work from init functions without
// any setup call.
//
// # Fallback Path
//
// The allocator's own bookkeeping may allocate, and collaborators attached
// through the Interceptor contract may call back into the allocator. Such
// re-entrant requests are served by the plain Go heap instead of the
// file-backed path, tracked per goroutine. A goroutine can also opt out
// entirely with DisableCurrentGoroutine.
//
// # Collaborators
//
// Optional collaborators attach through WithInterceptor and the narrow
// Interceptor contract:
//
//   - confirm: an interactive yes/no prompt per allocation; declining
//     turns the allocation into a failure
//   - journal: a companion metadata file per allocation, recording layout,
//     backing path and stack traces
//   - archive: preserves the final bytes of deallocated memory in a
//     blobstore, optionally compressed
//
// # Lifecycle
//
// Backing files are deleted only through Free (or the implicit free of
// Realloc). The allocator registers no finalizers, process-exit hooks or
// other automatic cleanup: allocations still live when the process dies
// intentionally leave their files behind.
package filealloc
