// Package resolver is the aggregation layer in front of the cache and the
// BGG client. Every entry point (batch, single game, game with versions,
// search, light search) resolves ids through one shared core that serves
// cache hits, fetches all misses in a single upstream call, writes the
// parsed records back and composes the answer in input order.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/tracing"
)

// Upstream is the BGG transport the service fetches from.
type Upstream interface {
	SearchGames(ctx context.Context, query string, gameType bgg.GameType, exact bool) ([]byte, error)
	GetGameDetails(ctx context.Context, id string) ([]byte, error)
	GetBatchMetadata(ctx context.Context, ids []string) ([]byte, error)
}

// Extractor turns raw upstream XML into domain records.
type Extractor interface {
	CleanXML(raw []byte) []byte
	ExtractMetadata(raw []byte) ([]bgg.GameMetadata, error)
	ExtractSearchItems(raw []byte) ([]bgg.SearchItem, error)
}

// Config holds the resolver limits.
type Config struct {
	// MaxBatchSize caps ids per batch request; extra ids are dropped
	MaxBatchSize int

	// MinQueryLength is the shortest trimmed query sent upstream
	MinQueryLength int

	// EnrichLimit is how many top search results get metadata
	EnrichLimit int

	// SearchPageSize caps returned search results
	SearchPageSize int

	// UpstreamTimeout bounds each upstream call
	UpstreamTimeout time.Duration
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:    20,
		MinQueryLength:  2,
		EnrichLimit:     10,
		SearchPageSize:  50,
		UpstreamTimeout: 20 * time.Second,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithConfig replaces the default limits.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithExtractor replaces the default bgg.Parser.
func WithExtractor(e Extractor) Option {
	return func(s *Service) { s.extractor = e }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service resolves BGG metadata through the cache.
type Service struct {
	cache     *cache.Manager
	upstream  Upstream
	extractor Extractor
	cfg       Config
	logger    zerolog.Logger
}

// New creates a resolver over an explicitly constructed cache and upstream.
func New(c *cache.Manager, upstream Upstream, opts ...Option) *Service {
	if c == nil {
		panic("cache manager cannot be nil")
	}
	if upstream == nil {
		panic("upstream cannot be nil")
	}

	s := &Service{
		cache:     c,
		upstream:  upstream,
		extractor: bgg.Parser{},
		cfg:       DefaultConfig(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	defaults := DefaultConfig()
	if s.cfg.MaxBatchSize <= 0 {
		s.cfg.MaxBatchSize = defaults.MaxBatchSize
	}
	if s.cfg.MinQueryLength <= 0 {
		s.cfg.MinQueryLength = defaults.MinQueryLength
	}
	if s.cfg.EnrichLimit < 0 {
		s.cfg.EnrichLimit = 0
	}
	if s.cfg.SearchPageSize <= 0 {
		s.cfg.SearchPageSize = defaults.SearchPageSize
	}
	if s.cfg.UpstreamTimeout <= 0 {
		s.cfg.UpstreamTimeout = defaults.UpstreamTimeout
	}
	return s
}

// Config returns the effective limits.
func (s *Service) Config() Config {
	return s.cfg
}

// Source tells where a resolved record came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
)

// Entry is the outcome for one requested id. Exactly one of Game and Err
// is set.
type Entry struct {
	ID     string
	Game   *bgg.GameMetadata
	Err    error
	Source Source
}

// plan parameterizes the shared resolution core.
type plan struct {
	name string

	// fetch retrieves every miss in one upstream call
	fetch func(ctx context.Context, ids []string) ([]byte, error)

	// accept decides whether a cached record satisfies the request;
	// nil accepts every hit
	accept func(*bgg.GameMetadata) bool

	// versions marks fetches that load versions, so a record without any
	// is stored as loaded with none published
	versions bool
}

func (s *Service) batchPlan() plan {
	return plan{
		name:  "batch",
		fetch: s.upstream.GetBatchMetadata,
	}
}

func (s *Service) detailsPlan() plan {
	return plan{
		name: "details",
		fetch: func(ctx context.Context, ids []string) ([]byte, error) {
			return s.upstream.GetGameDetails(ctx, ids[0])
		},
		accept:   (*bgg.GameMetadata).VersionsLoaded,
		versions: true,
	}
}

// resolve returns one entry per input id, in input order. Hits are served
// from the cache; all misses share one upstream call. When that call fails
// every miss carries its error while hits are still returned.
func (s *Service) resolve(ctx context.Context, ids []string, p plan) []Entry {
	ctx, span := tracing.StartSpan(ctx, "resolver.resolve")
	span.SetAttributes(
		attribute.String("resolver.plan", p.name),
		attribute.Int("resolver.ids", len(ids)),
	)
	defer span.End()

	entries := make([]Entry, len(ids))
	var missing []string
	seen := make(map[string]bool)

	for i, id := range ids {
		entries[i].ID = id
		if g, ok := s.cache.GetMetadata(id); ok && (p.accept == nil || p.accept(g)) {
			bgg.Classify(g)
			entries[i].Game = g
			entries[i].Source = SourceCache
			continue
		}
		if !seen[id] {
			seen[id] = true
			missing = append(missing, id)
		}
	}

	span.SetAttributes(attribute.Int("resolver.misses", len(missing)))
	if len(missing) == 0 {
		return entries
	}

	fetched, err := s.fetch(ctx, missing, p)
	if err != nil {
		span.RecordError(err)
		s.logger.Warn().
			Err(err).
			Str("plan", p.name).
			Int("misses", len(missing)).
			Msg("Upstream fetch failed")
	}

	for i := range entries {
		if entries[i].Game != nil {
			continue
		}
		if err != nil {
			entries[i].Err = err
			continue
		}
		g, ok := fetched[entries[i].ID]
		if !ok {
			entries[i].Err = fmt.Errorf("game %s: %w", entries[i].ID, ErrNotFound)
			continue
		}
		rec := *g
		entries[i].Game = &rec
		entries[i].Source = SourceUpstream
	}

	return entries
}

// fetch performs the single upstream call for ids, parses the answer and
// stores every parsed record before returning them keyed by id.
func (s *Service) fetch(ctx context.Context, ids []string, p plan) (map[string]*bgg.GameMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	games, err := s.extractor.ExtractMetadata(s.extractor.CleanXML(raw))
	if err != nil {
		// Unparseable answer: every requested id resolves as not found
		s.logger.Warn().Err(err).Str("plan", p.name).Msg("Failed to parse upstream metadata")
		return map[string]*bgg.GameMetadata{}, nil
	}

	out := make(map[string]*bgg.GameMetadata, len(games))
	recs := make([]*bgg.GameMetadata, 0, len(games))
	for i := range games {
		g := &games[i]
		bgg.Classify(g)
		if p.versions && g.Versions == nil {
			g.Versions = []bgg.Version{}
		}
		out[g.ID] = g
		recs = append(recs, g)
	}
	stored := s.cache.PutMetadataBatch(recs)

	s.logger.Info().
		Str("plan", p.name).
		Int("requested", len(ids)).
		Int("parsed", len(games)).
		Int("stored", stored).
		Dur("duration", time.Since(start)).
		Msg("Fetched metadata from upstream")

	return out, nil
}

// normalizeID trims an id and rejects blanks.
func normalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: game id is required", ErrInvalidInput)
	}
	return id, nil
}
