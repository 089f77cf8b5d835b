package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
)

const (
	// DefaultMetadataTTL is how long a game record stays fresh
	DefaultMetadataTTL = 24 * time.Hour

	// DefaultSearchTTL is how long a search result set stays fresh
	DefaultSearchTTL = 1 * time.Hour
)

var (
	// ErrInvalidTTL indicates a non-positive namespace TTL
	ErrInvalidTTL = errors.New("cache ttl must be positive")

	// ErrTTLOrder indicates search results would outlive metadata
	ErrTTLOrder = errors.New("metadata ttl must not be shorter than search ttl")
)

// Config holds the cache manager configuration.
type Config struct {
	// MetadataTTL bounds the age of game metadata entries
	MetadataTTL time.Duration

	// SearchTTL bounds the age of search result entries (<= MetadataTTL)
	SearchTTL time.Duration

	// MaxMetadataEntries caps the metadata namespace (0 = unbounded)
	MaxMetadataEntries uint64

	// MaxSearchEntries caps the search namespace (0 = unbounded)
	MaxSearchEntries uint64

	// Now is the clock used for insertion stamps and expiry (default time.Now)
	Now func() time.Time
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MetadataTTL:        DefaultMetadataTTL,
		SearchTTL:          DefaultSearchTTL,
		MaxMetadataEntries: 10000,
		MaxSearchEntries:   2000,
		Now:                time.Now,
	}
}

// SearchResultSet is a resolved search stored in the search namespace.
type SearchResultSet struct {
	Query    string             `json:"query"`
	Options  SearchOptions      `json:"options"`
	Results  []bgg.SearchResult `json:"results"`
	Total    int                `json:"total"`
	Score    float64            `json:"score"`
	StoredAt time.Time          `json:"storedAt"`
}

// Manager owns the metadata and search namespaces. It is safe for
// concurrent use; no operation blocks on I/O.
type Manager struct {
	metadata *namespace[bgg.GameMetadata]
	search   *namespace[SearchResultSet]
	now      func() time.Time
	logger   zerolog.Logger
}

// NewManager creates a cache manager.
func NewManager(cfg Config, logger zerolog.Logger) (*Manager, error) {
	if cfg.MetadataTTL <= 0 || cfg.SearchTTL <= 0 {
		return nil, ErrInvalidTTL
	}
	if cfg.MetadataTTL < cfg.SearchTTL {
		return nil, fmt.Errorf("%w (metadata %s, search %s)", ErrTTLOrder, cfg.MetadataTTL, cfg.SearchTTL)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		metadata: newNamespace[bgg.GameMetadata]("metadata", cfg.MetadataTTL, cfg.MaxMetadataEntries, cfg.Now),
		search:   newNamespace[SearchResultSet]("search", cfg.SearchTTL, cfg.MaxSearchEntries, cfg.Now),
		now:      cfg.Now,
		logger:   logger,
	}, nil
}

// GetMetadata returns a copy of the cached record for id.
// Returns false if the id was never stored or its entry has expired.
func (m *Manager) GetMetadata(id string) (*bgg.GameMetadata, bool) {
	rec, ok := m.metadata.get(id)
	if !ok {
		m.logger.Debug().Str("id", id).Bool("cache_hit", false).Msg("Metadata lookup")
		return nil, false
	}
	m.logger.Debug().Str("id", id).Bool("cache_hit", true).Msg("Metadata lookup")
	return rec.Clone(), true
}

// PutMetadata stores a copy of rec under its id, overwriting any previous
// record. The record is not validated; nil is ignored.
func (m *Manager) PutMetadata(rec *bgg.GameMetadata) {
	if rec == nil {
		return
	}
	m.metadata.put(rec.ID, *rec.Clone())
}

// PutMetadataBatch stores every non-nil record and returns how many
// were stored. A bad record never prevents the others from being stored.
func (m *Manager) PutMetadataBatch(recs []*bgg.GameMetadata) int {
	stored := 0
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		m.PutMetadata(rec)
		stored++
	}
	return stored
}

// GetSearchResults returns the result set stored for query and opts.
func (m *Manager) GetSearchResults(query string, opts SearchOptions) (*SearchResultSet, bool) {
	key := SearchKey(query, opts)
	set, ok := m.search.get(key)
	m.logger.Debug().Str("key", key).Bool("cache_hit", ok).Msg("Search lookup")
	if !ok {
		return nil, false
	}
	set.Results = append([]bgg.SearchResult(nil), set.Results...)
	return &set, true
}

// PutSearchResults stores a result set under the normalized key.
// total is the upstream match count, score the best result score.
func (m *Manager) PutSearchResults(query string, results []bgg.SearchResult, total int, score float64, opts SearchOptions) {
	set := SearchResultSet{
		Query:    NormalizeQuery(query),
		Options:  opts,
		Results:  append([]bgg.SearchResult(nil), results...),
		Total:    total,
		Score:    score,
		StoredAt: m.now(),
	}
	m.search.put(SearchKey(query, opts), set)
}

// Statistics returns the current counters. It does not mutate state.
func (m *Manager) Statistics() Statistics {
	return Statistics{
		Metadata: m.metadata.stats(),
		Search:   m.search.stats(),
	}
}

// Efficiency returns hit rates derived from Statistics.
func (m *Manager) Efficiency() Efficiency {
	return m.Statistics().Efficiency()
}

// ClearAll empties both namespaces and resets all counters.
func (m *Manager) ClearAll() {
	before := m.Statistics()
	m.metadata.clear()
	m.search.clear()
	m.logger.Info().
		Int("metadata_entries", before.Metadata.Entries).
		Int("search_entries", before.Search.Entries).
		Msg("Cache cleared")
}
