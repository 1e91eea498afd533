// Package runner moves expansions off the caller's goroutine. Each
// submission copies its file into the scratch root, expands it, appends
// the leaves to a shared FileList and publishes an Event.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/akernet/logbuddy/pkg/scratch"
	"github.com/akernet/logbuddy/pkg/types"
)

// ErrClosed is returned for submissions made after Close.
var ErrClosed = errors.New("runner closed")

var errCancelled = errors.New("submission cancelled")

// Expander expands one file into its leaves.
type Expander interface {
	Expand(ctx context.Context, path string) (*types.Result, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxConcurrent bounds how many submissions run at once. Zero or less
// means unbounded.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Runner schedules submissions. All methods are safe for concurrent use.
type Runner struct {
	root   *scratch.Root
	ex     Expander
	files  *FileList
	sem    *semaphore.Weighted
	logger *slog.Logger
	events *mailbox

	mu      sync.Mutex
	closed  bool
	handles map[string]*Handle
	wg      sync.WaitGroup
}

// New creates a Runner that stages copies in root and expands them with ex.
func New(root *scratch.Root, ex Expander, opts ...Option) *Runner {
	r := &Runner{
		root:    root,
		ex:      ex,
		files:   &FileList{},
		logger:  slog.New(slog.DiscardHandler),
		events:  newMailbox(),
		handles: make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Events delivers one Event per finished submission, in completion order.
// The channel is closed by Close once every queued event was received.
func (r *Runner) Events() <-chan Event {
	return r.events.out
}

// Files returns the shared list all submissions append to.
func (r *Runner) Files() *FileList {
	return r.files
}

// Submit starts loading path in the background and returns immediately.
func (r *Runner) Submit(ctx context.Context, path string) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:     uuid.NewString(),
		Source: path,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		h.finish(nil, ErrClosed)
		return h
	}
	r.handles[h.ID] = h
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("submission queued", "submission", h.ID, "path", path)
	go r.run(ctx, h)
	return h
}

func (r *Runner) run(ctx context.Context, h *Handle) {
	defer r.wg.Done()
	defer h.cancel()
	defer func() {
		r.mu.Lock()
		delete(r.handles, h.ID)
		r.mu.Unlock()
	}()

	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			r.complete(h, nil, fmt.Errorf("%w before start: %v", errCancelled, err))
			return
		}
		defer r.sem.Release(1)
	}
	if err := ctx.Err(); err != nil {
		r.complete(h, nil, fmt.Errorf("%w before start: %v", errCancelled, err))
		return
	}

	res, err := r.load(ctx, h)
	r.complete(h, res, err)
}

// load copies and expands one submission. On failure the submission
// directory is removed.
func (r *Runner) load(ctx context.Context, h *Handle) (*types.Result, error) {
	dir, err := r.root.NewSubmissionDir(h.ID)
	if err != nil {
		return nil, types.NewError(types.OpCopy, h.Source, err)
	}

	dest := filepath.Join(dir, filepath.Base(h.Source))
	r.logger.Info("copying file", "submission", h.ID, "from", h.Source, "to", dest)
	if err := copyFile(ctx, h.Source, dest); err != nil {
		r.release(dir)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", errCancelled, ctx.Err())
		}
		return nil, types.NewError(types.OpCopy, h.Source, err)
	}

	res, err := r.ex.Expand(ctx, dest)
	if err != nil {
		r.release(dir)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", errCancelled, err)
		}
		return nil, err
	}
	res.Submission = h.ID
	res.Source = h.Source
	return res, nil
}

func (r *Runner) complete(h *Handle, res *types.Result, err error) {
	ev := Event{Submission: h.ID, Source: h.Source, Result: res, Err: err}
	if err == nil {
		ev.Files = r.files.Append(res.Leaves...)
		r.logger.Info("got file list", "submission", h.ID, "files", len(res.Leaves), "failures", len(res.Failures))
	} else {
		r.logger.Warn("submission failed", "submission", h.ID, "path", h.Source, "err", err)
	}
	h.finish(res, err)
	r.events.push(ev)
}

func (r *Runner) release(dir string) {
	if err := r.root.Release(dir); err != nil {
		r.logger.Warn("releasing submission dir failed", "dir", dir, "err", err)
	}
}

// Close cancels outstanding submissions, waits for them to finish and
// closes the events channel after the remaining events are delivered.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, h := range r.handles {
		h.Cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	r.events.close()
	return nil
}

// IsCancelled reports whether err marks a cancelled submission.
func IsCancelled(err error) bool {
	return errors.Is(err, errCancelled)
}

// copyFile copies a regular file to a new path, honouring ctx.
func copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

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
