package filealloc

// Decision is an interceptor's verdict on an allocation.
type Decision int

const (
	// Allow lets the allocation proceed.
	Allow Decision = iota
	// Deny converts the allocation into a failure; the just-created backing
	// resource is torn down before the caller sees the error.
	Deny
)

// Event describes one allocation to interceptors.
type Event struct {
	// Addr is the mapped base address.
	Addr uintptr
	// Layout is the originally requested layout.
	Layout Layout
	// Path is the backing file's path. The file holds exactly the raw bytes
	// of the allocation for as long as the allocation lives.
	Path string
}

// Interceptor observes and optionally vetoes allocations. Implementations
// attach via WithInterceptor; the allocator depends only on this interface,
// never on a concrete collaborator (journal, confirm, archive, ...).
//
// Both methods run on the calling goroutine while the allocator is inside
// its own bookkeeping: allocations an interceptor performs are served by
// the fallback allocator, never recursively by the file-backed path.
// OnAllocate may block (e.g. an interactive prompt).
type Interceptor interface {
	// OnAllocate runs after the backing resource is created and registered,
	// before the address is returned to the caller. Deny fails the
	// allocation and tears the resource down.
	OnAllocate(ev Event) Decision

	// OnDeallocate runs before the backing resource is destroyed. It is
	// purely observational.
	OnDeallocate(ev Event)
}

// dispatchAllocate asks every interceptor in order; the first Deny wins.
func (a *Allocator) dispatchAllocate(ev Event) Decision {
	for _, ic := range a.interceptors {
		if ic.OnAllocate(ev) == Deny {
			return Deny
		}
	}
	return Allow
}

func (a *Allocator) dispatchDeallocate(ev Event) {
	for _, ic := range a.interceptors {
		ic.OnDeallocate(ev)
	}
}
