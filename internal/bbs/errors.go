package bbs

import (
	"errors"
	"fmt"
)

// ErrInvalidPost is returned when a post request fails validation before anything is sent.
var ErrInvalidPost = errors.New("invalid post")

// StorageError wraps a Store failure. The operation that hit it made no partial changes.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
