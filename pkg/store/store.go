// Package store persists expansion manifests: which submissions were
// loaded, the leaves each produced and the branches that failed.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akernet/logbuddy/pkg/types"
)

// MemoryPath selects the in-memory backend.
const MemoryPath = ":memory:"

// Submission is one recorded top-level load.
type Submission struct {
	ID       string    `json:"id" yaml:"id"`
	Source   string    `json:"source" yaml:"source"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
}

// Store provides persistence for expansion manifests.
type Store interface {
	// AddSubmission stores a submission record. Re-adding an ID is a no-op.
	AddSubmission(s Submission) error

	// AddLeaf stores a leaf under a submission (deduplicated by member).
	AddLeaf(submission string, l types.Leaf) error

	// AddFailure stores a branch failure under a submission.
	AddFailure(submission string, f types.Failure) error

	// GetSubmissions retrieves all submissions in insertion order.
	GetSubmissions() ([]Submission, error)

	// GetLeaves retrieves a submission's leaves in insertion order.
	GetLeaves(submission string) ([]types.Leaf, error)

	// GetFailures retrieves a submission's failures in insertion order.
	GetFailures(submission string) ([]types.Failure, error)

	// LeafExists reports whether any submission produced content with id.
	LeafExists(id types.BlobID) (bool, error)

	// Close closes the underlying storage.
	Close() error
}

// Config for store initialization.
type Config struct {
	// Path is the database file path.
	// Use ":memory:" for an in-memory store (useful for testing) or a
	// postgres:// URL for a shared PostgreSQL database.
	Path string
}

// New creates a Store: a MemoryStore for ":memory:", PostgreSQL for a
// postgres:// URL, otherwise SQLite.
func New(cfg Config) (Store, error) {
	switch {
	case cfg.Path == "":
		return nil, fmt.Errorf("path is required")
	case cfg.Path == MemoryPath:
		return NewMemory(), nil
	case IsPostgresURL(cfg.Path):
		s, err := NewPostgres(context.Background(), cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Record writes one expansion result: its submission, every leaf and
// every failure. Errors from individual rows are joined.
func Record(s Store, res *types.Result) error {
	if res == nil {
		return fmt.Errorf("nil result")
	}
	if res.Submission == "" {
		return fmt.Errorf("result for %s has no submission id", res.Source)
	}

	err := s.AddSubmission(Submission{
		ID:       res.Submission,
		Source:   res.Source,
		Started:  res.Started,
		Finished: res.Finished,
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, l := range res.Leaves {
		if err := s.AddLeaf(res.Submission, l); err != nil {
			errs = append(errs, err)
		}
	}
	for _, f := range res.FailureRecords() {
		if err := s.AddFailure(res.Submission, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
