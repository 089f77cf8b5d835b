package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// namespace is one independently expiring pool of entries with its own
// counters. Expiry is checked on read against the manager clock; the
// underlying ttlcache only bounds capacity.
type namespace[V any] struct {
	name  string
	ttl   time.Duration
	now   func() time.Time
	store *ttlcache.Cache[string, Entry[V]]

	// mu orders writes against the delete of an expired entry so a fresh
	// write is never removed by a concurrent stale read.
	mu sync.Mutex

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
}

func newNamespace[V any](name string, ttl time.Duration, capacity uint64, now func() time.Time) *namespace[V] {
	opts := []ttlcache.Option[string, Entry[V]]{
		ttlcache.WithTTL[string, Entry[V]](ttlcache.NoTTL),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, Entry[V]](capacity))
	}

	n := &namespace[V]{
		name:  name,
		ttl:   ttl,
		now:   now,
		store: ttlcache.New[string, Entry[V]](opts...),
	}

	n.store.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, Entry[V]]) {
		if reason == ttlcache.EvictionReasonCapacityReached {
			n.evictions.Add(1)
			CacheEvictions.WithLabelValues(n.name, "capacity").Inc()
		}
	})

	return n
}

// get returns the value stored under key if it has not expired.
func (n *namespace[V]) get(key string) (V, bool) {
	var zero V

	item := n.store.Get(key)
	if item == nil {
		n.miss()
		return zero, false
	}

	entry := item.Value()
	if entry.IsExpired(n.now(), n.ttl) {
		n.expire(key, entry.StoredAt)
		n.miss()
		return zero, false
	}

	n.hits.Add(1)
	CacheHits.WithLabelValues(n.name).Inc()
	return entry.Value, true
}

// expire deletes key if it still holds the entry stored at storedAt.
func (n *namespace[V]) expire(key string, storedAt time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()

	item := n.store.Get(key, ttlcache.WithDisableTouchOnHit[string, Entry[V]]())
	if item == nil || !item.Value().StoredAt.Equal(storedAt) {
		return
	}
	n.store.Delete(key)
	n.evictions.Add(1)
	n.expirations.Add(1)
	CacheEvictions.WithLabelValues(n.name, "expired").Inc()
	CacheEntries.WithLabelValues(n.name).Set(float64(n.store.Len()))
}

func (n *namespace[V]) miss() {
	n.misses.Add(1)
	CacheMisses.WithLabelValues(n.name).Inc()
}

// put stores value under key, overwriting any previous entry.
func (n *namespace[V]) put(key string, value V) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.store.Set(key, Entry[V]{Value: value, StoredAt: n.now()}, ttlcache.NoTTL)
	CacheEntries.WithLabelValues(n.name).Set(float64(n.store.Len()))
}

// clear drops all entries and zeroes the counters.
func (n *namespace[V]) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.store.DeleteAll()
	n.hits.Store(0)
	n.misses.Store(0)
	n.evictions.Store(0)
	n.expirations.Store(0)
	CacheEntries.WithLabelValues(n.name).Set(0)
}

func (n *namespace[V]) stats() NamespaceStats {
	return NamespaceStats{
		Hits:        n.hits.Load(),
		Misses:      n.misses.Load(),
		Evictions:   n.evictions.Load(),
		Expirations: n.expirations.Load(),
		Entries:     n.store.Len(),
		TTL:         n.ttl,
	}
}
