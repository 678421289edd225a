// Package guard implements the goroutine-scoped reentrancy guard of
// filealloc.
//
// The allocator's own bookkeeping (building file names, touching the
// registry, dispatching hooks) may itself allocate or call back into the
// allocator. The guard marks the calling goroutine while that bookkeeping
// runs, so re-entrant requests are routed to the plain fallback allocator
// instead of recursing into the file-backed path forever. It also carries
// the user-facing per-goroutine "disabled" switch.
//
// State is keyed by goroutine ID across a fixed set of mutex-guarded
// shards. Only non-Normal states are stored: a goroutine that has never
// touched the allocator, or whose bookkeeping has finished and that is not
// disabled, occupies no memory here. No state ever outlives the explicit
// transitions; nothing is cleaned up behind the owner's back.
package guard

import "sync"

// State is the guard mode of one goroutine.
type State int

const (
	// Normal routes requests through the file-backed path.
	Normal State = iota
	// InBookkeeping marks allocator-internal work; requests fall back.
	InBookkeeping
	// Disabled is the explicit per-goroutine opt-out; requests fall back
	// until Enable is called on the same goroutine.
	Disabled
)

func (s State) String() string {
	switch s {
	case Normal:
		return "normal"
	case InBookkeeping:
		return "in-bookkeeping"
	case Disabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const shardCount = 64 // power of two, ID is masked into it

type entry struct {
	depth    int // bookkeeping nesting depth
	disabled bool
}

type shard struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// Guard tracks the per-goroutine state machine. The zero value is not
// usable; use New.
type Guard struct {
	shards [shardCount]shard
}

// New returns a ready-to-use guard.
func New() *Guard {
	g := &Guard{}
	for i := range g.shards {
		g.shards[i].entries = make(map[int64]*entry)
	}
	return g
}

func (g *Guard) shardFor(gid int64) *shard {
	return &g.shards[gid&(shardCount-1)]
}

// State reports the calling goroutine's mode. Disabled wins over
// InBookkeeping: an explicitly disabled goroutine stays on the fallback
// path no matter what.
func (g *Guard) State() State {
	gid := goroutineID()
	s := g.shardFor(gid)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[gid]
	if !ok {
		return Normal
	}
	if e.disabled {
		return Disabled
	}
	if e.depth > 0 {
		return InBookkeeping
	}
	return Normal
}

// Enter marks the calling goroutine as InBookkeeping and returns the exit
// function. The exit function must run on every path out of the scope,
// including failures; pair the two with defer:
//
//	exit := g.Enter()
//	defer exit()
func (g *Guard) Enter() func() {
	gid := goroutineID()
	s := g.shardFor(gid)

	s.mu.Lock()
	e, ok := s.entries[gid]
	if !ok {
		e = &entry{}
		s.entries[gid] = e
	}
	e.depth++
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		e.depth--
		if e.depth <= 0 && !e.disabled {
			delete(s.entries, gid)
		}
		s.mu.Unlock()
	}
}

// Disable switches the calling goroutine to the fallback path until Enable
// runs on the same goroutine. The allocator never clears this implicitly.
func (g *Guard) Disable() {
	gid := goroutineID()
	s := g.shardFor(gid)

	s.mu.Lock()
	e, ok := s.entries[gid]
	if !ok {
		e = &entry{}
		s.entries[gid] = e
	}
	e.disabled = true
	s.mu.Unlock()
}

// Enable clears the calling goroutine's Disabled state.
func (g *Guard) Enable() {
	gid := goroutineID()
	s := g.shardFor(gid)

	s.mu.Lock()
	if e, ok := s.entries[gid]; ok {
		e.disabled = false
		if e.depth <= 0 {
			delete(s.entries, gid)
		}
	}
	s.mu.Unlock()
}
