package types

import (
	"errors"
	"fmt"
)

// Op names the operation that failed during expansion.
type Op string

const (
	// OpSniff: the sniff prefix could not be read.
	OpSniff Op = "sniff"
	// OpUnpack: the archive library rejected the input.
	OpUnpack Op = "unpack"
	// OpWalk: enumerating an unpacked directory failed.
	OpWalk Op = "walk"
	// OpCopy: copying a submitted file into the scratch root failed.
	OpCopy Op = "copy"
)

// Error is a failure attributed to one path and one operation.
type Error struct {
	Op   Op
	Path string
	Err  error
}

// NewError wraps err with the failing operation and path.
func NewError(op Op, path string, err error) *Error {
	return &Error{Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsSniffError reports whether err carries an OpSniff failure.
func IsSniffError(err error) bool { return hasOp(err, OpSniff) }

// IsUnpackError reports whether err carries an OpUnpack failure.
func IsUnpackError(err error) bool { return hasOp(err, OpUnpack) }

// IsWalkError reports whether err carries an OpWalk failure.
func IsWalkError(err error) bool { return hasOp(err, OpWalk) }

// IsCopyError reports whether err carries an OpCopy failure.
func IsCopyError(err error) bool { return hasOp(err, OpCopy) }

func hasOp(err error, op Op) bool {
	var e *Error
	return errors.As(err, &e) && e.Op == op
}
