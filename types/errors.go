package types

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreNotFound is returned when no persisted index exists at a location
	ErrStoreNotFound = errors.New("fingerprint store not found")

	// ErrStoreCorrupt is returned when a persisted index cannot be read back
	ErrStoreCorrupt = errors.New("fingerprint store is corrupt")
)

// DecodeError reports an image that could not be read or decoded
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode image %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NewDecodeError wraps err as a DecodeError for path
func NewDecodeError(path string, err error) error {
	return &DecodeError{Path: path, Err: err}
}

// IsDecodeError reports whether err is, or wraps, a DecodeError
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// IndexIOError reports a failure while writing the index to disk.
// A store left behind by a failed write must not be queried.
type IndexIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IndexIOError) Error() string {
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IndexIOError) Unwrap() error { return e.Err }

// StoreCorruptf builds an error that matches ErrStoreCorrupt
func StoreCorruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStoreCorrupt, fmt.Sprintf(format, args...))
}
