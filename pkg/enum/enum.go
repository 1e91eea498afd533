// Package enum turns command-line inputs into the list of files to load.
// A file names itself; a directory contributes every eligible file below it.
package enum

import (
	"context"
)

// Enumerator discovers the files to load from a source.
type Enumerator interface {
	// Enumerate yields file paths in lexicographic order.
	Enumerate(ctx context.Context, callback func(path string) error) error
}

// Config for enumeration.
type Config struct {
	// Root is the starting path for enumeration.
	Root string

	// IncludeHidden includes hidden files/directories (starting with .).
	IncludeHidden bool

	// MaxFileSize is the maximum file size to load (0 = no limit).
	MaxFileSize int64

	// FollowSymlinks follows symbolic links to regular files.
	FollowSymlinks bool
}
