// Package storage abstracts the client-side key/value storage the SDK
// persists identifiers and in-flight payment snapshots to. In a browser
// this would be session/local storage; Go hosts plug in the in-memory
// store, the Redis store, or their own implementation.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no value (or it expired).
var ErrNotFound = errors.New("storage: key not found")

// ErrUnavailable is returned when the backing store cannot be reached.
// Consumers must degrade gracefully (the flow never fails purely
// because storage is blocked, e.g. private browsing).
var ErrUnavailable = errors.New("storage: unavailable")

// Store is a minimal TTL-aware key/value store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
