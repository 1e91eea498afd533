// Package unpack writes the members of container files into a destination
// directory. Archive ownership and permission metadata is never applied.
package unpack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/akernet/logbuddy/pkg/types"
)

var (
	// ErrUnsupportedFormat is returned for formats with no registered unpacker.
	ErrUnsupportedFormat = errors.New("unsupported archive format")
	// ErrUnsafePath is returned for members that would land outside the destination.
	ErrUnsafePath = errors.New("unsafe member path")
	// ErrLimitExceeded is returned when an archive exceeds the configured limits.
	ErrLimitExceeded = errors.New("archive limit exceeded")
)

// Source is an archive opened for reading, positioned at offset zero.
type Source interface {
	io.Reader
	io.ReaderAt
	io.Seeker
}

// Archive describes one container to unpack.
type Archive struct {
	// Name is the base name of the archive file. Single-stream formats use it
	// to name their output.
	Name string
	R    Source
	Size int64
}

// Unpacker extracts one container format through a Writer.
type Unpacker interface {
	Unpack(ctx context.Context, a Archive, w *Writer) error
}

// UnpackerFunc adapts a function to Unpacker.
type UnpackerFunc func(ctx context.Context, a Archive, w *Writer) error

// Unpack calls f.
func (f UnpackerFunc) Unpack(ctx context.Context, a Archive, w *Writer) error {
	return f(ctx, a, w)
}

// Limits bounds what a single archive may produce. Zero means no limit.
type Limits struct {
	MaxEntries int
	MaxBytes   int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithLimits caps entries and bytes per archive.
func WithLimits(l Limits) Option {
	return func(r *Registry) {
		r.limits = l
	}
}

// WithLogger sets the logger used for skipped members.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// Registry maps formats to unpackers.
type Registry struct {
	mu        sync.RWMutex
	unpackers map[types.Format]Unpacker
	limits    Limits
	logger    *slog.Logger
}

// NewRegistry returns a registry with every built-in format registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		unpackers: map[types.Format]Unpacker{
			types.FormatZip:   UnpackerFunc(unzip),
			types.FormatTar:   UnpackerFunc(untarArchive),
			types.Format7z:    UnpackerFunc(un7z),
			types.FormatGzip:  gzipStream,
			types.FormatBzip2: bzip2Stream,
			types.FormatXz:    xzStream,
			types.FormatZstd:  zstdStream,
			types.FormatLz4:   lz4Stream,
		},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces the unpacker for format.
func (r *Registry) Register(format types.Format, u Unpacker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unpackers[format] = u
}

// Supports reports whether format has an unpacker.
func (r *Registry) Supports(format types.Format) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.unpackers[format]
	return ok
}

// Unpack creates dest, which must not exist yet, and extracts a into it.
// Members written before a failure are left in place.
func (r *Registry) Unpack(ctx context.Context, format types.Format, a Archive, dest string) error {
	r.mu.RLock()
	u, ok := r.unpackers[format]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if _, err := a.R.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", a.Name, err)
	}
	if err := os.Mkdir(dest, dirPerm); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}

	w := newWriter(dest, r.limits, r.logger)
	return u.Unpack(ctx, a, w)
}

// UnpackFile opens path and unpacks it into dest.
func (r *Registry) UnpackFile(ctx context.Context, format types.Format, path, dest string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return r.Unpack(ctx, format, Archive{Name: info.Name(), R: f, Size: info.Size()}, dest)
}
