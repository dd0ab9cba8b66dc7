package idempotency

import (
	"context"
	"time"
)

// Store is the capability this middleware needs from a cache backend. Keys
// are opaque strings already namespaced by caller identity; values are
// encoded response snapshots. In-memory, Redis-backed, and database-backed
// implementations satisfy it interchangeably.
type Store interface {
	// Get returns the stored bytes for key, or ErrNotFound when no live
	// entry exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. The entry expires after ttl; the
	// middleware never deletes entries itself.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
