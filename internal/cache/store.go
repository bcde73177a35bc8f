package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNilStore is returned by NewStore when a redis backend is selected
	// without a client.
	ErrNilStore = errors.New("cache: store is nil")

	// ErrEmptyKey is returned when an operation is attempted on an empty key.
	ErrEmptyKey = errors.New("cache: key is empty")
)

// Store is a raw key-value backend. Implementations report every failure
// as an error; the Adapter decides what to do with it.
// Implemented by the memory store (dev, tests) and the Redis store (prod).
type Store interface {
	// Get returns (nil, false, nil) on a clean miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. ttl <= 0 means the entry does not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}
