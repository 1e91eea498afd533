// Package logbuddy expands log bundles: it takes files of any type,
// recursively unpacks every archive inside them into a private scratch
// directory and reports the flat list of files that were found.
//
// # Basic Usage
//
// Open a session, load files and read the results as they finish:
//
//	s, err := logbuddy.Open()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	s.Load(ctx, "support-bundle.tar.gz")
//	ev := <-s.Events()
//	if ev.Err != nil {
//	    log.Fatal(ev.Err)
//	}
//	for _, leaf := range ev.Result.Leaves {
//	    fmt.Println(leaf.Member, leaf.Path)
//	}
//
// # Recording a Manifest
//
// Pass a store to keep a record of every completed load:
//
//	st, _ := store.New(store.Config{Path: "manifest.db"})
//	s, err := logbuddy.Open(logbuddy.WithStore(st))
package logbuddy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/akernet/logbuddy/pkg/extract"
	"github.com/akernet/logbuddy/pkg/runner"
	"github.com/akernet/logbuddy/pkg/scratch"
	"github.com/akernet/logbuddy/pkg/store"
	"github.com/akernet/logbuddy/pkg/types"
	"github.com/akernet/logbuddy/pkg/unpack"
)

// Re-export commonly used types for convenience.
type (
	// Leaf is one discovered non-archive file.
	Leaf = types.Leaf

	// Result is the outcome of expanding one submitted file.
	Result = types.Result

	// Event reports a finished submission.
	Event = runner.Event

	// Handle tracks a submission started with Load.
	Handle = runner.Handle
)

// Session bundles a scratch root, an extractor and a runner.
type Session struct {
	root   *scratch.Root
	runner *runner.Runner
	store  store.Store
	config *sessionConfig
	events chan runner.Event
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// sessionConfig holds session configuration.
type sessionConfig struct {
	scratchDir    string
	maxConcurrent int
	exclude       []string
	limits        unpack.Limits
	logger        *slog.Logger
	store         store.Store
	keep          bool
}

// Option configures a Session.
type Option func(*sessionConfig)

// WithScratchDir sets the parent directory of the scratch root.
// Default is the system temporary directory.
func WithScratchDir(dir string) Option {
	return func(c *sessionConfig) {
		c.scratchDir = dir
	}
}

// WithMaxConcurrent bounds how many loads run at once. Default is unbounded.
func WithMaxConcurrent(n int) Option {
	return func(c *sessionConfig) {
		c.maxConcurrent = n
	}
}

// WithExclude drops leaves whose member path matches any of the
// gitignore-style patterns.
func WithExclude(patterns ...string) Option {
	return func(c *sessionConfig) {
		c.exclude = append(c.exclude, patterns...)
	}
}

// WithLimits caps the entries and bytes any single archive may produce.
func WithLimits(l unpack.Limits) Option {
	return func(c *sessionConfig) {
		c.limits = l
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(c *sessionConfig) {
		c.logger = l
	}
}

// WithStore records every completed load in st. The session does not
// close st.
func WithStore(st store.Store) Option {
	return func(c *sessionConfig) {
		c.store = st
	}
}

// WithKeepScratch leaves the scratch root on disk after Close.
func WithKeepScratch() Option {
	return func(c *sessionConfig) {
		c.keep = true
	}
}

// Open creates the scratch root and starts a session.
func Open(opts ...Option) (*Session, error) {
	config := &sessionConfig{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(config)
	}

	root, err := scratch.New(config.scratchDir, scratch.WithLogger(config.logger))
	if err != nil {
		return nil, err
	}

	ex := extract.New(root,
		extract.WithLimits(config.limits),
		extract.WithFilter(extract.NewPatternFilter(config.exclude...)),
		extract.WithLogger(config.logger),
	)
	r := runner.New(root, ex,
		runner.WithMaxConcurrent(config.maxConcurrent),
		runner.WithLogger(config.logger),
	)

	s := &Session{
		root:   root,
		runner: r,
		store:  config.store,
		config: config,
		events: make(chan runner.Event),
		done:   make(chan struct{}),
	}
	go s.forward()
	return s, nil
}

// forward records completed loads and passes events on. After Close,
// events nobody receives are dropped.
func (s *Session) forward() {
	defer close(s.events)
	for ev := range s.runner.Events() {
		if s.store != nil && ev.OK() {
			if err := store.Record(s.store, ev.Result); err != nil {
				s.config.logger.Warn("recording manifest failed", "submission", ev.Submission, "err", err)
			}
		}
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// Load starts expanding path in the background.
func (s *Session) Load(ctx context.Context, path string) *Handle {
	return s.runner.Submit(ctx, path)
}

// Events delivers one Event per finished load. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Files returns every leaf discovered so far, across all loads.
func (s *Session) Files() []Leaf {
	return s.runner.Files().Snapshot()
}

// ScratchDir returns the scratch root location.
func (s *Session) ScratchDir() string {
	return s.root.Path()
}

// Close cancels running loads, then removes the scratch root unless
// WithKeepScratch was given. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		var errs []error
		if err := s.runner.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing runner: %w", err))
		}
		if s.config.keep {
			s.config.logger.Info("keeping scratch root", "path", s.root.Path())
		} else if err := s.root.Close(); err != nil {
			errs = append(errs, fmt.Errorf("removing scratch root: %w", err))
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}
