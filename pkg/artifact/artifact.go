// Package artifact abstracts storage for rendered resume documents.
//
// Work item result refs are artifact keys; the surrounding product
// resolves them through a Store. Backends implement a minimal surface:
// write, read, close. Authentication uses SDK default credential
// chains; backends do not implement custom auth logic.
package artifact

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no artifact exists for a key.
var ErrNotFound = errors.New("artifact not found")

// Store persists rendered artifacts.
//
// Implementations must be safe for concurrent use; items of the same
// batch write artifacts in parallel.
type Store interface {
	// Put writes an artifact and returns the key it is retrievable by.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)

	// Get reads an artifact by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Close releases any resources held by the store.
	Close() error
}

// StoreError wraps backend failures with operation context.
type StoreError struct {
	Op      string
	Backend string
	Key     string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("artifact %s (%s backend, key=%q): %v", e.Op, e.Backend, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
