// Package kv holds the local key-value backends that stand in for the
// browser's localStorage: an in-process map, a directory of files, bbolt and SQLite.
package kv

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errdefs.ErrNotFound.WithMessage("key not found")

// Store is a flat string-keyed byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns the keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Change describes a write observed on a shared backend.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// Watcher is implemented by backends that can report writes made through
// other handles or other processes, like the browser's storage event.
// Writes made through the watching handle itself are not reported.
type Watcher interface {
	Watch(ctx context.Context, fn func(Change)) error
}

// New creates the backend named by backend, rooted at path when it needs one.
func New(backend, path string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemory(), nil
	case "file", "":
		return NewFileStore(path)
	case "bolt":
		return NewBoltStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown kv backend: %s (supported: memory, file, bolt, sqlite)", backend)
	}
}
