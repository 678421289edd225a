package filealloc

import "unsafe"

// The fallback allocator is the ordinary Go heap. It serves every request
// made while the calling goroutine is inside allocator bookkeeping or
// explicitly disabled, and it performs no registry bookkeeping at all.
//
// Freeing fallback memory is a no-op: the garbage collector owns heap
// slices, and reclaiming them early is neither possible nor needed.

// fallbackAlloc returns a heap slice honoring the layout's alignment.
// Even a zero-size request gets a distinct backing byte so that its address
// never aliases another allocation's.
func fallbackAlloc(layout Layout) []byte {
	align := layout.Align
	if align < 1 {
		align = 1
	}

	n := layout.Size
	if n == 0 {
		n = 1
	}

	buf := make([]byte, n+align-1)
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	off := int((uintptr(align) - base%uintptr(align)) % uintptr(align))

	return buf[off : off+layout.Size : off+n]
}

// fallbackRealloc allocates a new heap slice for newLayout and copies the
// lesser of the old and new sizes.
func fallbackRealloc(buf []byte, oldLayout, newLayout Layout) []byte {
	next := fallbackAlloc(newLayout)

	n := oldLayout.Size
	if len(buf) < n {
		n = len(buf)
	}
	if newLayout.Size < n {
		n = newLayout.Size
	}
	copy(next[:n], buf[:n])

	return next
}
