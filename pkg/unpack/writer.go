package unpack

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	filePerm os.FileMode = 0o644
	dirPerm  os.FileMode = 0o755
)

// Writer creates archive members under one destination directory. It
// rejects paths escaping the destination and enforces Limits.
type Writer struct {
	dest    string
	limits  Limits
	logger  *slog.Logger
	entries int
	written int64
}

func newWriter(dest string, limits Limits, logger *slog.Logger) *Writer {
	return &Writer{dest: dest, limits: limits, logger: logger}
}

// Dest returns the destination directory.
func (w *Writer) Dest() string {
	return w.dest
}

// Dir creates a directory member.
func (w *Writer) Dir(name string) error {
	path, err := w.resolve(name)
	if err != nil {
		return err
	}
	return os.MkdirAll(path, dirPerm)
}

// File writes a regular-file member from r. An existing member of the same
// name is replaced.
func (w *Writer) File(ctx context.Context, name string, r io.Reader) error {
	path, err := w.resolve(name)
	if err != nil {
		return err
	}
	if path == w.dest {
		return fmt.Errorf("%w: %q names the destination", ErrUnsafePath, name)
	}

	w.entries++
	if w.limits.MaxEntries > 0 && w.entries > w.limits.MaxEntries {
		return fmt.Errorf("%w: more than %d entries", ErrLimitExceeded, w.limits.MaxEntries)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerm)
	if err != nil {
		return err
	}

	src := io.Reader(&ctxReader{ctx: ctx, r: r})
	if w.limits.MaxBytes > 0 {
		src = io.LimitReader(src, w.limits.MaxBytes-w.written+1)
	}
	n, copyErr := io.Copy(f, src)
	w.written += n
	closeErr := f.Close()

	if copyErr != nil {
		return copyErr
	}
	if w.limits.MaxBytes > 0 && w.written > w.limits.MaxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrLimitExceeded, w.limits.MaxBytes)
	}
	return closeErr
}

// Skip records a member that was deliberately not extracted.
func (w *Writer) Skip(name, reason string) {
	w.logger.Debug("skipping archive member", "dest", w.dest, "member", name, "reason", reason)
}

// resolve maps a member name to a path inside the destination.
func (w *Writer) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}
	path := filepath.Join(w.dest, clean)
	rel, err := filepath.Rel(w.dest, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes destination", ErrUnsafePath, name)
	}
	return path, nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// memberError attributes err to one archive member.
func memberError(name string, err error) error {
	return fmt.Errorf("member %s: %w", name, err)
}
