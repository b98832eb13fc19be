// ABOUTME: KV interface and sentinel errors for trace-assist persistence
// ABOUTME: Sessions and legacy chat state are stored as opaque values under string keys

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist
var ErrNotFound = errors.New("not found")

// KV defines the interface for key-value persistence.
// The session continuity manager is the sole writer of session keys;
// other components must not bypass it with direct access.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix, in unspecified order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the store
	Close() error
}
