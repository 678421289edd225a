// Package archive preserves allocation contents at deallocation time.
//
// An Archiver attaches to an allocator as an interceptor. When an
// allocation is freed, the Archiver reads the backing file before it is
// torn down and streams its contents, optionally compressed, into a
// blobstore.Store. The allocation's bytes thereby outlive the allocation.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/filealloc"
	"github.com/hupe1980/filealloc/blobstore"
	"github.com/hupe1980/filealloc/resource"
)

// Compression selects the codec applied to archived contents.
type Compression int

const (
	// None stores raw bytes.
	None Compression = iota
	// Zstd compresses with Zstandard.
	Zstd
	// LZ4 compresses with LZ4 frames.
	LZ4
)

// Ext returns the file extension appended to archive names.
func (c Compression) Ext() string {
	switch c {
	case Zstd:
		return ".zst"
	case LZ4:
		return ".lz4"
	default:
		return ""
	}
}

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", int(c))
	}
}

// Options configures an Archiver.
type Options struct {
	// Compression selects the codec. Defaults to None.
	Compression Compression

	// Controller bounds archive concurrency and IO throughput.
	// A nil controller imposes no limits.
	Controller *resource.Controller

	// Logger receives a line per archived allocation. Defaults to a
	// no-op logger.
	Logger *filealloc.Logger
}

// Option configures an Archiver.
type Option func(*Options)

// WithCompression selects the archive codec.
func WithCompression(c Compression) Option {
	return func(o *Options) {
		o.Compression = c
	}
}

// WithResourceController bounds archive concurrency and IO throughput.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *Options) {
		o.Controller = rc
	}
}

// WithLogger sets the logger used for archive activity.
func WithLogger(logger *filealloc.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Archiver copies freed allocations into a blob store. It implements
// filealloc.Interceptor.
type Archiver struct {
	store blobstore.Store
	opts  Options
}

var _ filealloc.Interceptor = (*Archiver)(nil)

// New creates an Archiver writing into store.
func New(store blobstore.Store, optFns ...Option) *Archiver {
	opts := Options{
		Compression: None,
		Logger:      filealloc.NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Archiver{
		store: store,
		opts:  opts,
	}
}

// OnAllocate never vetoes; archiving only concerns teardown.
func (a *Archiver) OnAllocate(ev filealloc.Event) filealloc.Decision {
	return filealloc.Allow
}

// OnDeallocate archives the backing file's contents before the file is
// removed. Archiving runs on the freeing goroutine; by the time control
// returns to the allocator the archive blob is fully written.
func (a *Archiver) OnDeallocate(ev filealloc.Event) {
	if err := a.archive(context.Background(), ev); err != nil {
		a.opts.Logger.Error("archive failed", "path", ev.Path, "error", err)
		return
	}
	a.opts.Logger.Debug("archived allocation",
		"path", ev.Path,
		"size", ev.Layout.Size,
		"compression", a.opts.Compression.String(),
	)
}

// Name returns the archive blob name for a backing file path.
func (a *Archiver) Name(path string) string {
	return filepath.Base(path) + a.opts.Compression.Ext()
}

func (a *Archiver) archive(ctx context.Context, ev filealloc.Event) error {
	if err := a.opts.Controller.AcquireArchiveWorker(ctx); err != nil {
		return err
	}
	defer a.opts.Controller.ReleaseArchiveWorker()

	f, err := os.Open(ev.Path)
	if err != nil {
		return fmt.Errorf("open backing file: %w", err)
	}
	defer f.Close()

	wb, err := a.store.Create(ctx, a.Name(ev.Path))
	if err != nil {
		return fmt.Errorf("create blob: %w", err)
	}

	if err := a.copyCompressed(ctx, wb, io.LimitReader(f, int64(ev.Layout.Size))); err != nil {
		_ = wb.Close()
		return err
	}

	return wb.Close()
}

func (a *Archiver) copyCompressed(ctx context.Context, dst io.Writer, src io.Reader) error {
	switch a.opts.Compression {
	case Zstd:
		enc, err := zstd.NewWriter(dst)
		if err != nil {
			return err
		}
		if err := a.throttledCopy(ctx, enc, src); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	case LZ4:
		enc := lz4.NewWriter(dst)
		if err := a.throttledCopy(ctx, enc, src); err != nil {
			_ = enc.Close()
			return err
		}
		return enc.Close()
	default:
		return a.throttledCopy(ctx, dst, src)
	}
}

// throttledCopy copies src to dst, charging the controller's IO budget
// per chunk.
func (a *Archiver) throttledCopy(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 64*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if werr := a.opts.Controller.WaitIO(ctx, n); werr != nil {
				return werr
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Retrieve reads an archived allocation back, decompressing it.
func (a *Archiver) Retrieve(ctx context.Context, name string) ([]byte, error) {
	blob, err := a.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	raw := make([]byte, blob.Size())
	if _, err := blob.ReadAt(ctx, raw, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return a.decompress(raw)
}

func (a *Archiver) decompress(raw []byte) ([]byte, error) {
	switch a.opts.Compression {
	case Zstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(raw, nil)
	case LZ4:
		r := lz4.NewReader(bytes.NewReader(raw))
		return io.ReadAll(r)
	default:
		return raw, nil
	}
}
