// Package scratch owns the process-lifetime directory that holds every copy
// and unpack destination. Nothing is written outside it.
package scratch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned after the root has been removed.
var ErrClosed = errors.New("scratch root closed")

// Root is the sandbox directory. It is safe for concurrent use.
type Root struct {
	path   string
	logger *slog.Logger
	next   atomic.Uint64

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

// Option configures a Root.
type Option func(*Root)

// WithLogger sets the logger for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(r *Root) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a fresh root under parent. An empty parent uses the system
// temporary directory.
func New(parent string, opts ...Option) (*Root, error) {
	dir, err := os.MkdirTemp(parent, "logbuddy-")
	if err != nil {
		return nil, fmt.Errorf("creating scratch root: %w", err)
	}
	// Resolve symlinks (e.g. /tmp on macOS) so Contains works on walked paths.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	r := &Root{path: dir, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(r)
	}
	r.logger.Info("initiated scratch root", "path", dir)
	return r, nil
}

// Path returns the root directory.
func (r *Root) Path() string {
	return r.path
}

// Contains reports whether path is the root or lies beneath it.
func (r *Root) Contains(path string) bool {
	rel, err := filepath.Rel(r.path, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// NextID returns a root-wide unique, monotonically increasing number.
func (r *Root) NextID() uint64 {
	return r.next.Add(1)
}

// DestFor returns a destination directory for unpacking path: a sibling
// named "<name>_<id>" when path is inside the root, otherwise a child of the
// root. The directory is not created.
func (r *Root) DestFor(path string) string {
	name := filepath.Base(path) + "_" + strconv.FormatUint(r.NextID(), 10)
	parent := filepath.Dir(path)
	if !r.Contains(parent) {
		parent = r.path
	}
	return filepath.Join(parent, name)
}

// NewSubmissionDir creates <root>/<id> for one submission.
func (r *Root) NewSubmissionDir(id string) (string, error) {
	if r.closed.Load() {
		return "", ErrClosed
	}
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid submission id %q", id)
	}
	dir := filepath.Join(r.path, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating submission dir: %w", err)
	}
	return dir, nil
}

// Release removes dir and everything below it. Paths outside the root, and
// the root itself, are refused.
func (r *Root) Release(dir string) error {
	if !r.Contains(dir) || filepath.Clean(dir) == r.path {
		return fmt.Errorf("refusing to release %s: not inside scratch root %s", dir, r.path)
	}
	return os.RemoveAll(dir)
}

// Close recursively deletes the root. It is idempotent.
func (r *Root) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.logger.Info("cleaning up scratch root", "path", r.path)
		r.closeErr = os.RemoveAll(r.path)
	})
	return r.closeErr
}
