package datastore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/akernet/logbuddy/pkg/types"
)

// BlobStore manages content-addressable blob storage.
type BlobStore struct {
	Root string
}

// Store writes content to blob storage and returns the blob ID.
// Blob ID is SHA-1 hash of content (same as git blob hashing).
func (b *BlobStore) Store(content []byte) (types.BlobID, error) {
	id := types.ComputeBlobID(content)
	path := b.blobPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	tempPath, err := b.tempFile(path)
	if err != nil {
		return types.BlobID{}, err
	}
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		os.Remove(tempPath)
		return types.BlobID{}, fmt.Errorf("writing blob: %w", err)
	}
	return id, b.commit(tempPath, path)
}

// StoreFile streams the file at src into blob storage and returns its ID.
func (b *BlobStore) StoreFile(src string) (types.BlobID, error) {
	id, _, err := types.ComputeFileBlobID(src)
	if err != nil {
		return types.BlobID{}, fmt.Errorf("hashing blob source: %w", err)
	}
	path := b.blobPath(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return types.BlobID{}, fmt.Errorf("opening blob source: %w", err)
	}
	defer in.Close()

	tempPath, err := b.tempFile(path)
	if err != nil {
		return types.BlobID{}, err
	}
	out, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		os.Remove(tempPath)
		return types.BlobID{}, fmt.Errorf("writing blob: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tempPath)
		return types.BlobID{}, fmt.Errorf("writing blob: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tempPath)
		return types.BlobID{}, fmt.Errorf("writing blob: %w", err)
	}
	return id, b.commit(tempPath, path)
}

// Open returns a reader for the blob's content.
func (b *BlobStore) Open(id types.BlobID) (io.ReadCloser, error) {
	f, err := os.Open(b.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", id.Hex())
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return f, nil
}

// Get retrieves content by blob ID.
func (b *BlobStore) Get(id types.BlobID) ([]byte, error) {
	rc, err := b.Open(id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return content, nil
}

// Exists checks if a blob exists in storage.
func (b *BlobStore) Exists(id types.BlobID) bool {
	_, err := os.Stat(b.blobPath(id))
	return err == nil
}

// tempFile creates an empty temporary file next to path.
func (b *BlobStore) tempFile(path string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating blob temp file: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("creating blob temp file: %w", err)
	}
	return name, nil
}

// commit moves a fully written temp file into place.
func (b *BlobStore) commit(tempPath, path string) error {
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("renaming blob: %w", err)
	}
	return nil
}

// blobPath returns the file path for a blob ID.
// Uses git-style 2-char prefix: blobs/ab/cdef1234...
func (b *BlobStore) blobPath(id types.BlobID) string {
	hexID := id.Hex()
	return filepath.Join(b.Root, hexID[:2], hexID[2:])
}
