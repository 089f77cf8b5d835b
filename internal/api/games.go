package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
)

const (
	maxBodyBytes = 1 << 20

	// headerCacheStatus carries HIT or MISS on search responses.
	headerCacheStatus = "X-Cache"
)

// batchRequest is the POST body of the batch endpoint. Ids may be sent as
// JSON strings or numbers.
type batchRequest struct {
	IDs []json.Number `json:"ids"`
}

// batchEntry is one resolved id or an id+error pair.
type batchEntry struct {
	ID       string            `json:"id"`
	Game     *bgg.GameMetadata `json:"game,omitempty"`
	Source   resolver.Source   `json:"source,omitempty"`
	Error    string            `json:"error,omitempty"`
	Category resolver.Category `json:"category,omitempty"`
}

type batchResponse struct {
	Results []batchEntry     `json:"results"`
	Summary resolver.Summary `json:"summary"`
}

type versionsResponse struct {
	Game     *bgg.GameMetadata `json:"game"`
	Versions []bgg.Version     `json:"versions"`
}

// batchMetadata resolves a list of ids given as a JSON body (POST) or as
// a comma separated ids query parameter (GET).
func (h *Handler) batchMetadata(w http.ResponseWriter, r *http.Request) {
	ids, err := batchIDs(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.resolver.ResolveBatch(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := batchResponse{
		Results: make([]batchEntry, len(res.Entries)),
		Summary: res.Summary,
	}
	for i, e := range res.Entries {
		entry := batchEntry{ID: e.ID, Game: e.Game, Source: e.Source}
		if e.Err != nil {
			category := resolver.Classify(e.Err)
			entry.Error = category.Message(e.Err)
			entry.Category = category
			entry.Source = ""
		}
		resp.Results[i] = entry
	}

	writeJSON(w, http.StatusOK, resp)
}

func batchIDs(w http.ResponseWriter, r *http.Request) ([]string, error) {
	if r.Method == http.MethodGet {
		raw := r.URL.Query().Get("ids")
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("%w: ids query parameter is required", resolver.ErrInvalidInput)
		}
		return strings.Split(raw, ","), nil
	}

	var req batchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: malformed request body: %v", resolver.ErrInvalidInput, err)
	}

	ids := make([]string, len(req.IDs))
	for i, id := range req.IDs {
		ids[i] = id.String()
	}
	return ids, nil
}

func (h *Handler) game(w http.ResponseWriter, r *http.Request) {
	game, err := h.resolver.ResolveGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// gameVersions returns a game and its published versions from a single
// upstream call.
func (h *Handler) gameVersions(w http.ResponseWriter, r *http.Request) {
	game, err := h.resolver.ResolveGameDetails(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	versions := game.Versions
	if versions == nil {
		versions = []bgg.Version{}
	}
	writeJSON(w, http.StatusOK, versionsResponse{Game: game, Versions: versions})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.resolver.Search(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheStatus(w, resp.Cached)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lightSearch(w http.ResponseWriter, r *http.Request) {
	req, err := searchRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.resolver.LightSearch(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	setCacheStatus(w, resp.Cached)
	writeJSON(w, http.StatusOK, resp)
}

// setCacheStatus reports whether a search was answered from the cache.
func setCacheStatus(w http.ResponseWriter, cached bool) {
	status := "MISS"
	if cached {
		status = "HIT"
	}
	w.Header().Set(headerCacheStatus, status)
}

func searchRequest(r *http.Request) (resolver.SearchRequest, error) {
	q := r.URL.Query()
	req := resolver.SearchRequest{
		Query: q.Get("q"),
		Type:  bgg.GameType(q.Get("type")),
	}

	if raw := q.Get("exact"); raw != "" {
		exact, err := strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("%w: exact must be a boolean", resolver.ErrInvalidInput)
		}
		req.Exact = exact
	}
	return req, nil
}
