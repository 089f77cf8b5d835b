// Package api exposes the resolver and cache over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/logging"
	"github.com/tabletop-exchange/bgg-proxy/pkg/metrics"
	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
)

// Resolver is the resolution surface used by the handlers.
type Resolver interface {
	ResolveBatch(ctx context.Context, ids []string) (*resolver.BatchResult, error)
	ResolveGame(ctx context.Context, id string) (*bgg.GameMetadata, error)
	ResolveGameDetails(ctx context.Context, id string) (*bgg.GameMetadata, error)
	Search(ctx context.Context, req resolver.SearchRequest) (*resolver.SearchResponse, error)
	LightSearch(ctx context.Context, req resolver.SearchRequest) (*resolver.SearchResponse, error)
}

// CacheAdmin is the cache surface used by the stats and clear endpoints.
type CacheAdmin interface {
	Statistics() cache.Statistics
	ClearAll()
}

// ReadyFunc reports whether an external dependency is reachable.
type ReadyFunc func(ctx context.Context) error

// Dependencies are the collaborators injected into the router.
type Dependencies struct {
	Resolver Resolver
	Cache    CacheAdmin
	// Ready is optional; nil means always ready.
	Ready  ReadyFunc
	Logger zerolog.Logger
}

// Handler serves the proxy API.
type Handler struct {
	resolver Resolver
	cache    CacheAdmin
	ready    ReadyFunc
	logger   zerolog.Logger
}

// NewRouter builds the chi router with middleware and all routes.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Resolver == nil || deps.Cache == nil {
		panic("api: resolver and cache are required")
	}

	h := &Handler{
		resolver: deps.Resolver,
		cache:    deps.Cache,
		ready:    deps.Ready,
		logger:   deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.HTTPMiddleware(h.logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)
	r.Get("/ready", h.readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/bgg", func(r chi.Router) {
		r.Post("/metadata", h.batchMetadata)
		r.Get("/metadata", h.batchMetadata)

		r.With(revalidate(gameMaxAge)).Get("/games/{id}", h.game)
		r.With(revalidate(gameMaxAge)).Get("/games/{id}/versions", h.gameVersions)
		r.With(revalidate(searchMaxAge)).Get("/search", h.search)
		r.With(revalidate(searchMaxAge)).Get("/search/light", h.lightSearch)

		r.Get("/cache/stats", h.cacheStats)
		r.Delete("/cache", h.clearCache)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.ready(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "fail",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
