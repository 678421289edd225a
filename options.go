package filealloc

import (
	"io/fs"
	"log/slog"

	"github.com/hupe1980/filealloc/resource"
)

type options struct {
	dir          string
	perm         fs.FileMode
	logger       *Logger
	metrics      MetricsCollector
	interceptors []Interceptor
	controller   *resource.Controller
}

// Option configures Allocator construction.
type Option func(*options)

// WithDir sets the directory backing files are created in.
// If empty, a per-process directory under os.TempDir() is used.
func WithDir(dir string) Option {
	return func(o *options) {
		o.dir = dir
	}
}

// WithFilePerm sets the permission bits of backing files (default 0o600).
// Widening this lets other users of the machine open every allocation's
// backing file; writing to such a file mutates live process memory.
func WithFilePerm(perm fs.FileMode) Option {
	return func(o *options) {
		o.perm = perm
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithInterceptor attaches an interceptor. May be given multiple times;
// OnAllocate runs in attachment order and the first Deny wins.
func WithInterceptor(ic Interceptor) Option {
	return func(o *options) {
		if ic != nil {
			o.interceptors = append(o.interceptors, ic)
		}
	}
}

// WithResourceController enforces a mapped-memory budget on the file-backed
// path. Allocations that would exceed the budget fail with
// ErrLimitExceeded, exactly like an out-of-memory condition.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		perm:    0o600,
		logger:  NoopLogger(),
		metrics: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
