// Package storage reads and writes snapshot blobs in object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a flat key/value blob store.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Location renders a key as a human-readable URI for logs and results.
	Location(key string) string
}

// StorageError wraps a failed object storage operation.
type StorageError struct {
	Op       string // "put" or "get"
	Location string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
