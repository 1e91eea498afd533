package enum

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// FilesystemEnumerator enumerates files from a filesystem path.
type FilesystemEnumerator struct {
	config Config
}

// NewFilesystemEnumerator creates a new filesystem enumerator.
func NewFilesystemEnumerator(config Config) *FilesystemEnumerator {
	return &FilesystemEnumerator{config: config}
}

// Enumerate yields Root itself unless it is a directory; loading reports
// roots that are missing or unreadable. For a directory it walks the tree,
// honouring a .gitignore at Root, and yields eligible files in
// lexicographic order.
func (e *FilesystemEnumerator) Enumerate(ctx context.Context, callback func(path string) error) error {
	info, err := os.Stat(e.config.Root)
	if err != nil || !info.IsDir() {
		return callback(e.config.Root)
	}

	// Load .gitignore patterns if present
	var ignore *gitignore.GitIgnore
	gitignorePath := filepath.Join(e.config.Root, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		ignore, _ = gitignore.CompileIgnoreFile(gitignorePath)
	}

	var files []string
	err = filepath.Walk(e.config.Root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == e.config.Root {
			return nil
		}

		if info.IsDir() {
			if !e.config.IncludeHidden && isHidden(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !e.config.IncludeHidden && isHidden(info.Name()) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			if !e.config.FollowSymlinks {
				return nil
			}
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				return nil
			}
			info = target
		} else if !info.Mode().IsRegular() {
			return nil
		}

		if e.config.MaxFileSize > 0 && info.Size() > e.config.MaxFileSize {
			return nil
		}

		if ignore != nil {
			relPath, err := filepath.Rel(e.config.Root, path)
			if err != nil {
				return err
			}
			if ignore.MatchesPath(filepath.ToSlash(relPath)) {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return err
	}

	sort.Strings(files)
	for _, f := range files {
		if err := callback(f); err != nil {
			return err
		}
	}
	return nil
}

// Collect enumerates every root concurrently and returns the files in root
// order. An error while walking a directory fails the whole call.
func Collect(ctx context.Context, roots []string, config Config) ([]string, error) {
	results := make([][]string, len(roots))

	g, ctx := errgroup.WithContext(ctx)
	for i, root := range roots {
		cfg := config
		cfg.Root = root
		g.Go(func() error {
			err := NewFilesystemEnumerator(cfg).Enumerate(ctx, func(path string) error {
				results[i] = append(results[i], path)
				return nil
			})
			if err != nil {
				return fmt.Errorf("enumerating %s: %w", root, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []string
	for _, r := range results {
		files = append(files, r...)
	}
	return files, nil
}

// isHidden checks if a filename is hidden (starts with .).
// The special entries "." and ".." are NOT considered hidden.
func isHidden(name string) bool {
	if name == "." || name == ".." {
		return false
	}
	return strings.HasPrefix(name, ".")
}
