// Package datastore keeps expansion results beyond the scratch root: a
// directory holding the manifest database and, optionally, the content of
// every leaf addressed by its blob ID.
package datastore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akernet/logbuddy/pkg/store"
	"github.com/akernet/logbuddy/pkg/types"
)

// ManifestFile is the name of the manifest database inside a datastore.
const ManifestFile = "manifest.db"

// Datastore manages a directory-based datastore.
type Datastore struct {
	Path  string      // Directory path (e.g., "logbuddy.ds")
	Store store.Store // SQLite store for the manifest
	Blobs *BlobStore  // Optional leaf content storage (nil if StoreBlobs not set)
}

// Options configures datastore behavior.
type Options struct {
	StoreBlobs bool // Keep a copy of every leaf's content
}

// Open opens or creates a datastore directory.
func Open(path string, opts Options) (*Datastore, error) {
	if path == "" {
		return nil, fmt.Errorf("datastore path is required")
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating datastore directory: %w", err)
	}
	if opts.StoreBlobs {
		if err := os.MkdirAll(filepath.Join(path, "blobs"), 0755); err != nil {
			return nil, fmt.Errorf("creating blobs directory: %w", err)
		}
	}

	// Keep the datastore out of version control
	gitignorePath := filepath.Join(path, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("*\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing .gitignore: %w", err)
	}

	s, err := store.New(store.Config{Path: filepath.Join(path, ManifestFile)})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	ds := &Datastore{Path: path, Store: s}
	if opts.StoreBlobs {
		ds.Blobs = &BlobStore{Root: filepath.Join(path, "blobs")}
	}
	return ds, nil
}

// ManifestPath resolves path to a manifest database: a datastore directory
// maps to the manifest inside it, anything else is returned unchanged.
func ManifestPath(path string) string {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, ManifestFile)
	}
	return path
}

// Save records res and, when blob storage is enabled, copies the content
// of every hashed leaf. Leaves must still exist on disk.
func (d *Datastore) Save(res *types.Result) error {
	if err := store.Record(d.Store, res); err != nil {
		return fmt.Errorf("recording manifest: %w", err)
	}
	if d.Blobs == nil {
		return nil
	}

	var errs []error
	for _, leaf := range res.Leaves {
		if leaf.BlobID.IsZero() {
			continue
		}
		id, err := d.Blobs.StoreFile(leaf.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if id != leaf.BlobID {
			errs = append(errs, fmt.Errorf("%s changed after hashing", leaf.Path))
		}
	}
	return errors.Join(errs...)
}

// Close closes the datastore and releases resources.
func (d *Datastore) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
