package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error     string            `json:"error"`
	Category  resolver.Category `json:"category"`
	Retryable bool              `json:"retryable"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError classifies err and writes it with the category status.
// Rate limited responses carry Retry-After in whole seconds.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	category := resolver.Classify(err)
	status := category.StatusCode()

	if category == resolver.CategoryRateLimited {
		if wait := resolver.RetryAfter(err); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
	}

	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("category", string(category)).Msg("Request failed")
	}

	writeJSON(w, status, errorResponse{
		Error:     category.Message(err),
		Category:  category,
		Retryable: category.Retryable(),
	})
}
