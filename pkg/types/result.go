package types

import (
	"errors"
	"time"
)

// Leaf is a discovered non-container file.
type Leaf struct {
	// Path is the absolute location inside the scratch root.
	Path string `json:"path" yaml:"path"`
	// Member is the display path relative to the submission, with
	// destination suffixes removed (e.g. "logs.tar.gz/nested.zip/debug.log").
	Member string `json:"member" yaml:"member"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Size   int64  `json:"size" yaml:"size"`
	BlobID BlobID `json:"blob_id" yaml:"blob_id"`
}

// Failure is the serialisable form of a branch failure.
type Failure struct {
	Op      Op     `json:"op" yaml:"op"`
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

// Result is the flattened outcome of one top-level expansion.
type Result struct {
	Submission string    `json:"submission" yaml:"submission"`
	Source     string    `json:"source" yaml:"source"`
	Leaves     []Leaf    `json:"leaves" yaml:"leaves"`
	Failures   []*Error  `json:"-" yaml:"-"`
	Started    time.Time `json:"started" yaml:"started"`
	Finished   time.Time `json:"finished" yaml:"finished"`
}

// Paths returns the leaf paths in enumeration order.
func (r *Result) Paths() []string {
	paths := make([]string, len(r.Leaves))
	for i, l := range r.Leaves {
		paths[i] = l.Path
	}
	return paths
}

// Members returns the leaf display paths in enumeration order.
func (r *Result) Members() []string {
	members := make([]string, len(r.Leaves))
	for i, l := range r.Leaves {
		members[i] = l.Member
	}
	return members
}

// Err joins every branch failure, or returns nil when there were none.
func (r *Result) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// FailureRecords converts the branch failures for serialisation.
func (r *Result) FailureRecords() []Failure {
	records := make([]Failure, 0, len(r.Failures))
	for _, f := range r.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		records = append(records, Failure{Op: f.Op, Path: f.Path, Message: msg})
	}
	return records
}
