package api

import (
	"net/http"

	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
)

// namespaceView adds the configured TTL to the namespace counters.
type namespaceView struct {
	cache.NamespaceStats
	TTLSeconds float64 `json:"ttlSeconds"`
}

type cacheStatsResponse struct {
	Metadata   namespaceView    `json:"metadata"`
	Search     namespaceView    `json:"search"`
	Efficiency cache.Efficiency `json:"efficiency"`
}

func (h *Handler) cacheStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.cache.Statistics()
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		Metadata:   namespaceView{NamespaceStats: stats.Metadata, TTLSeconds: stats.Metadata.TTL.Seconds()},
		Search:     namespaceView{NamespaceStats: stats.Search, TTLSeconds: stats.Search.TTL.Seconds()},
		Efficiency: stats.Efficiency(),
	})
}

func (h *Handler) clearCache(w http.ResponseWriter, r *http.Request) {
	h.cache.ClearAll()
	h.logger.Info().
		Str("remote_addr", r.RemoteAddr).
		Msg("Cache cleared via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
