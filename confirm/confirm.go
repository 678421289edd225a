// Package confirm gates allocations behind an interactive prompt.
//
// A Prompter attaches to an allocator as an interceptor. Every mapped
// allocation blocks until the operator answers; anything but yes fails
// the allocation. Deallocations are announced but never blocked.
package confirm

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/hupe1980/filealloc"
)

// Prompter asks for confirmation before every allocation. It implements
// filealloc.Interceptor.
//
// A single prompt runs at a time; concurrent allocations queue on the
// prompter's mutex so answers cannot interleave.
type Prompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

var _ filealloc.Interceptor = (*Prompter)(nil)

// New creates a Prompter reading answers from in and writing prompts to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// NewStdio creates a Prompter on the process's stdin and stderr.
func NewStdio() *Prompter {
	return New(os.Stdin, os.Stderr)
}

// OnAllocate asks the operator to confirm the allocation. An answer of
// "y" or "yes" (case-insensitive) allows it; any other answer, or a read
// error, denies it.
func (p *Prompter) OnAllocate(ev filealloc.Event) filealloc.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "allocate %s backed by %s? [y/N] ", ev.Layout, ev.Path)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return filealloc.Deny
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return filealloc.Allow
	default:
		return filealloc.Deny
	}
}

// OnDeallocate announces the free. It never blocks the deallocation.
func (p *Prompter) OnDeallocate(ev filealloc.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "freed %s at 0x%08x (%s)\n", ev.Layout, ev.Addr, ev.Path)
}
