// Package cache stores computed feature and distance matrices so repeated
// runs over unchanged diagrams skip the computation.
//
// Entries are opaque byte slices addressed by keys from a [Keyer]. Keys are
// derived from a content hash of the diagram collection and every parameter
// that influences the result, so a cached value is never stale: changing
// the grid, the number of layers or the metric yields a different key.
//
// Three backends are provided:
//   - [FileCache] for the CLI, under the user's cache directory
//   - [RedisCache] for sharing results between service replicas
//   - [NullCache] when caching is disabled
package cache

import (
	"context"
	"time"
)

// Default time-to-live of cached entries.
const (
	TTLFeatures  = 7 * 24 * time.Hour
	TTLDistances = 7 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with expiration.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key. A missing or expired entry is
	// reported as hit == false with a nil error.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl <= 0 means no expiration.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the cache.
	Close() error
}

// NullCache is a Cache that stores nothing. Every Get is a miss.
type NullCache struct{}

// NewNullCache returns a cache that disables caching.
func NewNullCache() Cache {
	return &NullCache{}
}

func (*NullCache) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (*NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (*NullCache) Delete(context.Context, string) error                     { return nil }
func (*NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
