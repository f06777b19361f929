// Package cache is a small TTL key/value capability used to absorb repeat
// reads. It is purely a latency optimization: a miss (or any backend failure
// on read) always falls through to the store or remote source, never an error
// the caller must handle as a correctness signal.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values with a per-entry TTL.
type Cache interface {
	// Get unmarshals the cached value for key into v, reporting whether the
	// key was present.
	Get(ctx context.Context, key string, v interface{}) (bool, error)
	// Set stores v under key for ttl.
	Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	// Remove drops key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// Nop is the disabled cache: every read misses, every write is discarded.
type Nop struct{}

func NewNop() Nop { return Nop{} }

func (Nop) Get(ctx context.Context, key string, v interface{}) (bool, error) { return false, nil }

func (Nop) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error { return nil }

func (Nop) Remove(ctx context.Context, key string) error { return nil }
