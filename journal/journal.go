// Package journal writes a companion markdown file per allocation.
//
// The companion file sits next to the backing file, with the same name
// and a .md extension. It records the allocation's metadata and the
// stack that allocated it, then accumulates events until a final
// deallocation record. Companion files are not deleted when the
// allocation is freed; they are the durable trace of the process's
// allocation history.
package journal

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hupe1980/filealloc"
)

// Writer records allocation lifecycles as markdown files. It implements
// filealloc.Interceptor.
type Writer struct {
	perm   fs.FileMode
	logger *filealloc.Logger
}

var _ filealloc.Interceptor = (*Writer)(nil)

// Option configures a Writer.
type Option func(*Writer)

// WithFilePerm sets the permission bits for journal files.
func WithFilePerm(perm fs.FileMode) Option {
	return func(w *Writer) {
		w.perm = perm
	}
}

// WithLogger sets the logger used for journal write failures.
func WithLogger(logger *filealloc.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// New creates a journal Writer.
func New(optFns ...Option) *Writer {
	w := &Writer{
		perm:   0o600,
		logger: filealloc.NoopLogger(),
	}
	for _, fn := range optFns {
		fn(w)
	}
	return w
}

// Path returns the journal file path for a backing file path.
func Path(backingPath string) string {
	return strings.TrimSuffix(backingPath, filepath.Ext(backingPath)) + ".md"
}

// OnAllocate starts a fresh journal file for the allocation. A journal
// write failure never vetoes the allocation.
func (w *Writer) OnAllocate(ev filealloc.Event) filealloc.Decision {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Metadata\n- Allocation path: %s\n- Layout: %s\n- Address: 0x%08x\n\n",
		ev.Path, ev.Layout, ev.Addr)
	fmt.Fprintf(&sb, "# Allocation\n```\n%s```\n\n# Events\n", stack())

	if err := os.WriteFile(Path(ev.Path), []byte(sb.String()), w.perm); err != nil {
		w.logger.Error("journal write failed", "path", Path(ev.Path), "error", err)
	}
	return filealloc.Allow
}

// OnDeallocate appends the deallocation record. The journal file itself
// stays behind after the backing file is removed.
func (w *Writer) OnDeallocate(ev filealloc.Event) {
	f, err := os.OpenFile(Path(ev.Path), os.O_WRONLY|os.O_APPEND|os.O_CREATE, w.perm)
	if err != nil {
		w.logger.Error("journal append failed", "path", Path(ev.Path), "error", err)
		return
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "\n# Deallocation\n```\n%s```\n", stack()); err != nil {
		w.logger.Error("journal append failed", "path", Path(ev.Path), "error", err)
	}
}

// stack captures the calling goroutine's stack trace.
func stack() string {
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
