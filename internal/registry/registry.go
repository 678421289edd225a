// Package registry tracks the live mapped allocations of filealloc.
//
// It is the single structure shared across goroutines: a map from mapped
// base address to backing resource, guarded by a reader-writer lock so that
// read-mostly queries (path lookups, summaries) run in parallel and only
// serialize against actual inserts and removals.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/filealloc/internal/backing"
)

// Registry maps mapped base addresses to their backing resources.
// The zero value is ready to use.
type Registry struct {
	mu      sync.RWMutex
	entries map[uintptr]*backing.Resource
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[uintptr]*backing.Resource)}
}

// Insert adds the entry for addr. Inserting an address that is already
// present means a region was mapped over a live one; that is a broken
// invariant, not a user-facing error, and panics.
func (r *Registry) Insert(addr uintptr, res *backing.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[addr]; ok {
		panic(fmt.Sprintf("registry: address 0x%08x registered twice", addr))
	}
	r.entries[addr] = res
}

// Remove removes and returns the entry for addr. The second return value is
// false when the address was never registered, which is the normal signal
// that the memory belongs to the fallback allocator.
func (r *Registry) Remove(addr uintptr) (*backing.Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, ok := r.entries[addr]
	if ok {
		delete(r.entries, addr)
	}
	return res, ok
}

// Lookup returns the entry for addr without removing it.
func (r *Registry) Lookup(addr uintptr) (*backing.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.entries[addr]
	return res, ok
}

// Find returns the entry whose mapped region contains p, resolving interior
// pointers as well as base addresses.
func (r *Registry) Find(p uintptr) (*backing.Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for addr, res := range r.entries {
		if p >= addr && p < addr+uintptr(res.MappedLen()) {
			return res, true
		}
	}
	return nil, false
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Entry is one (address, resource) pair of a snapshot.
type Entry struct {
	Addr     uintptr
	Resource *backing.Resource
}

// Snapshot returns all live entries ordered by address, for deterministic
// enumeration.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for addr, res := range r.entries {
		out = append(out, Entry{Addr: addr, Resource: res})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
