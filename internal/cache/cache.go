// Package cache provides the TTL cache used to avoid repeated identity lookups
// (user status, memberships) on the request path. Stores are constructed
// explicitly and passed to their users; entries can be invalidated by the id of
// the entity they were derived from.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores after Close.
var ErrClosed = errors.New("cache: store closed")

// Store is a byte-oriented TTL cache with entity-keyed invalidation.
type Store interface {
	// Get returns the value for key and true, or false on a miss or an expired entry.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value for ttl and registers key under each entity id for Invalidate.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, entityIDs ...string) error
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// Invalidate removes every key registered under entityID and bumps its generation.
	Invalidate(ctx context.Context, entityID string) error
	// Generations returns the current generation of each entity id, in order.
	Generations(ctx context.Context, entityIDs ...string) ([]uint64, error)
	// SetIfCurrent is Set unless an entity was invalidated after gens was read from
	// Generations. Then nothing is stored and it returns false.
	SetIfCurrent(ctx context.Context, key string, value []byte, ttl time.Duration, gens []uint64, entityIDs ...string) (bool, error)
	// Close releases resources. Safe to call more than once.
	Close() error
}
