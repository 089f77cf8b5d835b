// Package cache provides the process-wide BGG cache with two namespaces.
//
// The manager keeps game metadata and search result sets apart, each with
// its own TTL, capacity and hit/miss counters:
//
// - Metadata entries are keyed by BGG id and overwritten whole on refetch
// - Search entries are keyed by normalized query plus sorted filter options
// - Expiry is checked lazily on every read; nothing sweeps in the background
// - Metadata must never expire sooner than search results
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	manager, err := cache.NewManager(cache.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//
//	if game, ok := manager.GetMetadata("13"); ok {
//		// served from cache
//	}
//
//	manager.PutMetadataBatch(records)
//
// # Search Keys
//
//	opts := cache.SearchOptions{Type: bgg.TypeBoardGame}
//	cache.SearchKey("  Catan ", opts) // search:full:catan:exact=false:type=boardgame
//
// # Metrics
//
// The cache manager exports Prometheus metrics:
//
//   - bgg_cache_hits_total{namespace} - Cache hits
//   - bgg_cache_misses_total{namespace} - Cache misses, expired reads included
//   - bgg_cache_evictions_total{namespace,reason} - Expired or capacity evictions
//   - bgg_cache_entries{namespace} - Current entry count
//
// The cache lives in memory for the lifetime of the process. Construct one
// Manager at startup and pass it to every consumer; tests use fresh ones.
package cache
