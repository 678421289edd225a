package filealloc

import (
	"fmt"
	"unsafe"

	"github.com/hupe1980/filealloc/internal/mmap"
)

// Layout describes a requested allocation: its size in bytes and its
// required alignment.
type Layout struct {
	// Size is the requested size in bytes. Zero is legal and still yields a
	// valid, distinct allocation.
	Size int
	// Align is the required alignment in bytes. It must be a power of two
	// no larger than the platform's page size; mapped regions are always
	// page-aligned, so any such alignment is satisfied by construction.
	Align int
}

// NewLayout validates size and align and returns the layout.
func NewLayout(size, align int) (Layout, error) {
	l := Layout{Size: size, Align: align}
	if err := l.validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// LayoutOf returns the layout of T, mirroring what the compiler would
// request for a value of that type.
func LayoutOf[T any]() Layout {
	var v T
	return Layout{
		Size:  int(unsafe.Sizeof(v)),
		Align: int(unsafe.Alignof(v)),
	}
}

func (l Layout) validate() error {
	if l.Size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrInvalidLayout, l.Size)
	}
	if l.Align <= 0 || l.Align&(l.Align-1) != 0 {
		return fmt.Errorf("%w: alignment %d is not a power of two", ErrInvalidLayout, l.Align)
	}
	if l.Align > mmap.PageSize() {
		return fmt.Errorf("%w: alignment %d exceeds page size %d", ErrInvalidLayout, l.Align, mmap.PageSize())
	}
	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("Layout{size: %d, align: %d}", l.Size, l.Align)
}
