package filealloc

import (
	"fmt"
	"strings"
)

// Allocation is one live file-backed allocation as seen by State.
type Allocation struct {
	// Addr is the mapped base address.
	Addr uintptr
	// Size is the originally requested size.
	Size int
	// MappedLen is the page-rounded mapped length.
	MappedLen int
	// Path is the backing file's path.
	Path string
}

// State returns every live file-backed allocation, ordered by address.
func (a *Allocator) State() []Allocation {
	snap := a.reg.Snapshot()

	out := make([]Allocation, 0, len(snap))
	for _, e := range snap {
		out = append(out, Allocation{
			Addr:      e.Addr,
			Size:      e.Resource.Size(),
			MappedLen: e.Resource.MappedLen(),
			Path:      e.Resource.Path(),
		})
	}
	return out
}

// Summary renders the live allocations as a human-readable report, one
// line per allocation, ordered by address.
func (a *Allocator) Summary() string {
	var sb strings.Builder
	sb.WriteString("filealloc state:\n")
	for _, alloc := range a.State() {
		fmt.Fprintf(&sb, "- 0x%08x %d B @ %s\n", alloc.Addr, alloc.Size, alloc.Path)
	}
	return sb.String()
}

// Summary renders the default allocator's live allocations.
func Summary() string {
	a, err := Default()
	if err != nil {
		return fmt.Sprintf("filealloc state unavailable: %v\n", err)
	}
	return a.Summary()
}
