package pix

import (
	"errors"
	"fmt"
)

var (
	// ErrReadOnly is returned when writing to a buffer opened without modification rights.
	ErrReadOnly = errors.New("pixel buffer is read-only")

	// ErrClosed is returned by buffer calls after Close.
	ErrClosed = errors.New("pixel buffer is closed")

	// ErrOutOfBounds is wrapped by errors for plane or region coordinates outside the pixels.
	ErrOutOfBounds = errors.New("coordinates out of bounds")
)

// ResourceError is an unrecoverable I/O or format-library failure on a
// storage path.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("pixel storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pixel storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError returns err as a *ResourceError unless it already is one.
func NewResourceError(op, path string, err error) error {
	var rerr *ResourceError
	if errors.As(err, &rerr) {
		return err
	}
	return &ResourceError{Op: op, Path: path, Err: err}
}

// MissingPyramidError means a pyramid is required for a pixels set but has not
// been generated.  Callers may retry later.
type MissingPyramidError struct {
	PixelsID int64
	Path     string
}

func (e *MissingPyramidError) Error() string {
	return fmt.Sprintf("pyramid for pixels %d missing at %s", e.PixelsID, e.Path)
}
