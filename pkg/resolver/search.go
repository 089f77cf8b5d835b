package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/tracing"
)

// Relevance scores by how the result name matches the query.
const (
	scoreExact    = 1.0
	scorePrefix   = 0.8
	scoreContains = 0.6
	scoreOther    = 0.4
)

// SearchRequest is a search by name.
type SearchRequest struct {
	Query string
	Type  bgg.GameType // empty means boardgame
	Exact bool
}

// SearchResponse is a page of scored results.
type SearchResponse struct {
	Query   string             `json:"query"`
	Results []bgg.SearchResult `json:"results"`
	Total   int                `json:"total"`
	HasMore bool               `json:"hasMore"`
	// Cached is sent as a response header, not in the body.
	Cached bool `json:"-"`
}

// Search runs a full search: results are scored and the top EnrichLimit
// entries carry metadata when it can be resolved.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return s.search(ctx, req, false)
}

// LightSearch runs a search without enrichment. Entries carry only id,
// name, year, type, expansion flag and score.
func (s *Service) LightSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	return s.search(ctx, req, true)
}

func (s *Service) search(ctx context.Context, req SearchRequest, light bool) (resp *SearchResponse, err error) {
	query := strings.TrimSpace(req.Query)
	if utf8.RuneCountInString(query) < s.cfg.MinQueryLength {
		return nil, fmt.Errorf("%w: query must be at least %d characters", ErrInvalidInput, s.cfg.MinQueryLength)
	}

	gameType := req.Type
	if gameType == "" {
		gameType = bgg.TypeBoardGame
	}
	if !gameType.Valid() {
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidInput, gameType)
	}

	opts := cache.SearchOptions{Type: gameType, Exact: req.Exact, Light: light}

	if set, ok := s.cache.GetSearchResults(query, opts); ok {
		results := set.Results
		if light {
			for i := range results {
				results[i] = bgg.Lighten(results[i])
			}
		}
		return &SearchResponse{
			Query:   set.Query,
			Results: results,
			Total:   set.Total,
			HasMore: set.Total > len(results),
			Cached:  true,
		}, nil
	}

	ctx, span := tracing.StartSpan(ctx, "resolver.search")
	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.Bool("search.light", light),
	)
	defer func() { tracing.EndSpan(span, err) }()

	items, err := s.searchUpstream(ctx, query, gameType, req.Exact)
	if err != nil {
		return nil, err
	}

	results := scoreItems(items, query)
	total := len(results)
	if len(results) > s.cfg.SearchPageSize {
		results = results[:s.cfg.SearchPageSize]
	}

	complete := true
	if light {
		for i := range results {
			results[i] = bgg.Lighten(results[i])
		}
	} else {
		complete = s.enrich(ctx, results)
	}

	// A transient enrichment failure is served once and never cached.
	if complete {
		best := 0.0
		if len(results) > 0 {
			best = results[0].Score
		}
		s.cache.PutSearchResults(query, results, total, best, opts)
	}

	s.logger.Info().
		Str("query", cache.NormalizeQuery(query)).
		Bool("light", light).
		Bool("stored", complete).
		Int("total", total).
		Int("returned", len(results)).
		Msg("Search resolved from upstream")

	return &SearchResponse{
		Query:   cache.NormalizeQuery(query),
		Results: results,
		Total:   total,
		HasMore: total > len(results),
	}, nil
}

func (s *Service) searchUpstream(ctx context.Context, query string, gameType bgg.GameType, exact bool) ([]bgg.SearchItem, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	raw, err := s.upstream.SearchGames(ctx, query, gameType, exact)
	if err != nil {
		return nil, err
	}

	items, err := s.extractor.ExtractSearchItems(s.extractor.CleanXML(raw))
	if err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return items, nil
}

// enrich fills the top results with metadata through the batch core.
// Failures leave the bare results in place. It reports false when an
// entry failed for a reason other than the id being unknown upstream.
func (s *Service) enrich(ctx context.Context, results []bgg.SearchResult) bool {
	n := min(len(results), s.cfg.EnrichLimit, s.cfg.MaxBatchSize)
	if n == 0 {
		return true
	}

	ids := make([]string, n)
	for i := range ids {
		ids[i] = results[i].ID
	}

	failed := 0
	transient := false
	var firstErr error
	for i, entry := range s.resolve(ctx, ids, s.batchPlan()) {
		if entry.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = entry.Err
			}
			if !errors.Is(entry.Err, ErrNotFound) {
				transient = true
			}
			continue
		}
		results[i] = bgg.Enrich(results[i], entry.Game)
	}

	if failed > 0 {
		s.logger.Warn().
			Err(firstErr).
			Int("failed", failed).
			Int("requested", n).
			Msg("Search enrichment incomplete, returning bare results")
	}
	return !transient
}

// scoreItems converts items to results ranked by name match. Ties keep
// upstream order.
func scoreItems(items []bgg.SearchItem, query string) []bgg.SearchResult {
	q := cache.NormalizeQuery(query)
	results := make([]bgg.SearchResult, len(items))
	for i, item := range items {
		results[i] = bgg.ToSearchResult(item, relevance(item.Name, q))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// relevance scores name against an already normalized query.
func relevance(name, query string) float64 {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == query:
		return scoreExact
	case strings.HasPrefix(n, query):
		return scorePrefix
	case strings.Contains(n, query):
		return scoreContains
	default:
		return scoreOther
	}
}
