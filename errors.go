package eventsourcing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent is returned when a record breaks the event invariants.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrStoreClosed is returned by stores used after Close.
	ErrStoreClosed = errors.New("event store closed")

	// ErrDuplicateEvent is returned when an event id is already recorded.
	ErrDuplicateEvent = errors.New("duplicate event id")
)

// StorageError wraps any failure of the underlying storage: connectivity,
// writes, reads or payload serialization. When an append fails with a
// StorageError the caller must not assume the event was recorded.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("eventstore %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// WrapStorageError returns nil for a nil err. Errors that already are a
// StorageError or an invalid-event error are returned unchanged.
func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, ErrInvalidEvent) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err originates from the storage layer.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
