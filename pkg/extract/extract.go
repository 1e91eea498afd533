// Package extract expands a file into the leaf files reachable through
// nested archives.
package extract

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/akernet/logbuddy/pkg/scratch"
	"github.com/akernet/logbuddy/pkg/sniff"
	"github.com/akernet/logbuddy/pkg/types"
	"github.com/akernet/logbuddy/pkg/unpack"
)

// Detector classifies a file by content.
type Detector interface {
	DetectFile(path string) (sniff.Detection, error)
}

// Unpackers extracts a detected format into a new directory.
type Unpackers interface {
	Supports(format types.Format) bool
	UnpackFile(ctx context.Context, format types.Format, path, dest string) error
}

// Extractor expands files under one scratch root. It holds no per-call
// state and may be used concurrently.
type Extractor struct {
	root      *scratch.Root
	detector  Detector
	unpackers Unpackers
	filter    Filter
	logger    *slog.Logger
}

type config struct {
	detector  Detector
	unpackers Unpackers
	limits    unpack.Limits
	filter    Filter
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*config)

// WithDetector replaces the default sniff registry.
func WithDetector(d Detector) Option {
	return func(c *config) {
		c.detector = d
	}
}

// WithUnpackers replaces the default unpack registry.
func WithUnpackers(u Unpackers) Option {
	return func(c *config) {
		c.unpackers = u
	}
}

// WithLimits bounds each archive when the default unpack registry is used.
func WithLimits(l unpack.Limits) Option {
	return func(c *config) {
		c.limits = l
	}
}

// WithFilter drops leaves the filter excludes. Archives are always expanded.
func WithFilter(f Filter) Option {
	return func(c *config) {
		c.filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// New creates an Extractor that unpacks into root.
func New(root *scratch.Root, opts ...Option) *Extractor {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	if cfg.detector == nil {
		cfg.detector = sniff.Default
	}
	if cfg.unpackers == nil {
		cfg.unpackers = unpack.NewRegistry(unpack.WithLimits(cfg.limits), unpack.WithLogger(cfg.logger))
	}

	return &Extractor{
		root:      root,
		detector:  cfg.detector,
		unpackers: cfg.unpackers,
		filter:    cfg.filter,
		logger:    cfg.logger,
	}
}

// pending is a file waiting on the worklist.
type pending struct {
	path   string
	member string
}

// Expand returns the leaves reachable from path in lexicographic
// depth-first order. Branch failures are collected in Result.Failures and
// never stop unrelated siblings. The error is non-nil only when ctx ends,
// in which case the partial result is returned with it.
func (e *Extractor) Expand(ctx context.Context, path string) (*types.Result, error) {
	res := &types.Result{Source: path, Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	stack := []pending{{path: path, member: filepath.Base(path)}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children, err := e.step(ctx, n, res)
		if err != nil {
			return res, err
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return res, nil
}

// step handles one file: it either records a leaf or unpacks it and
// returns the produced files.
func (e *Extractor) step(ctx context.Context, n pending, res *types.Result) ([]pending, error) {
	d, err := e.detector.DetectFile(n.path)
	if err != nil {
		e.fail(res, err)
		e.addLeaf(res, n, types.KindUnknown, false)
		return nil, nil
	}

	if d.Kind != types.KindArchive {
		e.logger.Debug("leaf file", "path", n.path, "kind", d.Kind, "mime", d.MIME)
		e.addLeaf(res, n, d.Kind, true)
		return nil, nil
	}
	if !e.unpackers.Supports(d.Format) {
		e.logger.Debug("no unpacker for archive, treating as leaf", "path", n.path, "format", d.Format)
		e.addLeaf(res, n, types.KindUnknown, true)
		return nil, nil
	}

	dest := e.root.DestFor(n.path)
	e.logger.Debug("unpacking archive", "path", n.path, "format", d.Format, "dest", dest)

	if err := e.unpackers.UnpackFile(ctx, d.Format, n.path, dest); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.fail(res, types.NewError(types.OpUnpack, n.path, err))
	}

	files, err := regularFiles(dest)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.fail(res, types.NewError(types.OpWalk, dest, err))
	}
	if len(files) == 0 {
		e.logger.Debug("archive produced no files", "path", n.path)
	}

	children := make([]pending, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dest, f)
		if err != nil {
			e.fail(res, types.NewError(types.OpWalk, f, err))
			continue
		}
		children = append(children, pending{path: f, member: path.Join(n.member, filepath.ToSlash(rel))})
	}
	return children, nil
}

func (e *Extractor) addLeaf(res *types.Result, n pending, kind types.Kind, readable bool) {
	if e.filter != nil && e.filter.Exclude(n.member) {
		e.logger.Debug("leaf excluded by filter", "path", n.path, "member", n.member)
		return
	}

	leaf := types.Leaf{Path: n.path, Member: n.member, Kind: kind}
	if readable {
		id, size, err := types.ComputeFileBlobID(n.path)
		if err != nil {
			e.logger.Warn("hashing leaf failed", "path", n.path, "err", err)
		} else {
			leaf.BlobID = id
			leaf.Size = size
		}
	}
	res.Leaves = append(res.Leaves, leaf)
}

func (e *Extractor) fail(res *types.Result, err error) {
	var te *types.Error
	if !errors.As(err, &te) {
		te = types.NewError(types.OpUnpack, res.Source, err)
	}
	e.logger.Warn("expansion branch failed", "op", te.Op, "path", te.Path, "err", te.Err)
	res.Failures = append(res.Failures, te)
}

// regularFiles lists regular files below dir sorted by path. On a walk
// error the files found so far are returned with it.
func regularFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// Expand runs a one-off expansion with default options.
func Expand(ctx context.Context, root *scratch.Root, path string) (*types.Result, error) {
	return New(root).Expand(ctx, path)
}
