// Package testutil provides testing utilities for the BGG proxy.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockBGGResponse defines the behavior for a mock BGG endpoint response.
type MockBGGResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockBGG is a configurable mock xmlapi2 server for testing.
type MockBGG struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	things   map[string]string

	// Tracking
	requestCount   int
	pathCounts     map[string]int
	lastQuery      map[string]string
	lastUserAgent  string
	lastAuthHeader string
}

// NewMockBGG creates a new mock BGG server. Unless a handler is set,
// /thing answers with the items registered through AddThing.
func NewMockBGG() *MockBGG {
	mock := &MockBGG{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		things:     make(map[string]string),
		pathCounts: make(map[string]int),
		lastQuery:  make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastQuery[r.URL.Path] = r.URL.RawQuery
		mock.lastUserAgent = r.Header.Get("User-Agent")
		mock.lastAuthHeader = r.Header.Get("Authorization")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBGG) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBGG) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBGG) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastQuery = make(map[string]string)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockBGG) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBGG) SetResponse(path string, resp MockBGGResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetSequence answers path with the given responses in order, repeating
// the last one once the sequence is used up.
func (m *MockBGG) SetSequence(path string, responses ...MockBGGResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[next]
		if next < len(responses)-1 {
			next++
		}
		mu.Unlock()

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// AddThing registers the <item> XML served for id by the default /thing
// handler.
func (m *MockBGG) AddThing(id, itemXML string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.things[id] = itemXML
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBGG) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetPathCount returns the number of requests made to path.
func (m *MockBGG) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastQuery returns the raw query string of the last request to path.
func (m *MockBGG) LastQuery(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery[path]
}

// LastUserAgent returns the User-Agent of the last request.
func (m *MockBGG) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// LastAuthorization returns the Authorization header of the last request.
func (m *MockBGG) LastAuthorization() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAuthHeader
}

// defaultHandler serves registered things and empty searches.
func (m *MockBGG) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")

	switch r.URL.Path {
	case "/thing":
		var sb strings.Builder
		sb.WriteString(`<?xml version="1.0" encoding="utf-8"?><items termsofuse="https://boardgamegeek.com/xmlapi/termsofuse">`)
		m.mu.RLock()
		for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
			if item, ok := m.things[id]; ok {
				sb.WriteString(item)
			}
		}
		m.mu.RUnlock()
		sb.WriteString(`</items>`)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sb.String()))
	case "/search":
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?><items total="0"></items>`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ThingXML builds a minimal <item> element for a game.
func ThingXML(id, gameType, name string, year int) string {
	return fmt.Sprintf(`<item type="%s" id="%s"><name type="primary" sortindex="1" value="%s"/><yearpublished value="%d"/></item>`,
		gameType, id, name, year)
}

// SearchXML builds a search document from id/name pairs of one type.
func SearchXML(gameType string, items ...[2]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="utf-8"?><items total="%d">`, len(items))
	for _, it := range items {
		fmt.Fprintf(&sb, `<item type="%s" id="%s"><name type="primary" value="%s"/></item>`, gameType, it[0], it[1])
	}
	sb.WriteString(`</items>`)
	return sb.String()
}

// NewQueuedResponse creates a 202 response as BGG sends while preparing data.
func NewQueuedResponse() MockBGGResponse {
	return MockBGGResponse{
		StatusCode: http.StatusAccepted,
		Body:       `<?xml version="1.0" encoding="utf-8"?><message>Your request for this collection has been accepted and will be processed.</message>`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockBGGResponse {
	resp := MockBGGResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `<?xml version="1.0" encoding="utf-8"?><error><message>Rate limit exceeded.</message></error>`,
		Headers:    map[string]string{"Content-Type": "text/xml; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockBGGResponse {
	return MockBGGResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `Internal server error`,
	}
}

// NewXMLResponse creates a 200 response with an XML body.
func NewXMLResponse(body string) MockBGGResponse {
	return MockBGGResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "text/xml; charset=utf-8"},
	}
}
