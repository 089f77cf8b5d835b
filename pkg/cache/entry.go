// Package cache provides the in-memory BGG metadata and search result cache.
package cache

import (
	"time"
)

// Entry is a cached value stamped with the time it was stored.
type Entry[V any] struct {
	// Value is the cached record
	Value V

	// StoredAt is when the value was written
	StoredAt time.Time
}

// IsExpired returns true if the entry is older than ttl at now.
// An entry read exactly at StoredAt+ttl is still valid.
func (e Entry[V]) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.StoredAt) > ttl
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e Entry[V]) TTL(now time.Time, ttl time.Duration) time.Duration {
	remaining := e.StoredAt.Add(ttl).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
