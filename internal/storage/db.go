// Package storage provides the key/value stores the ledger state is
// persisted in.
package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// DB is the interface for key-value storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix in key order.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}

// Batch buffers writes and applies them atomically on Commit.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Commit() error
}

// Batcher is implemented by stores that support atomic batches.
type Batcher interface {
	NewBatch() Batch
}

// Open opens a store of the named backend. path is ignored for memory.
func Open(backend, path string) (DB, error) {
	switch backend {
	case BackendBadger:
		return NewBadger(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// batchOp is one buffered write.
type batchOp struct {
	key   []byte
	value []byte
	del   bool
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
