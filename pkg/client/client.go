// Package client provides the BGG XML API transport with request pacing,
// upstream rate limit handling, retries and error classification.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
	"github.com/tabletop-exchange/bgg-proxy/pkg/ratelimit"
	"github.com/tabletop-exchange/bgg-proxy/pkg/tracing"
)

// Prometheus metrics for upstream operations.
var (
	bggRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_upstream_requests_total",
		Help: "Total BGG requests by endpoint and status",
	}, []string{"endpoint", "status"})

	bggRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bgg_upstream_request_duration_seconds",
		Help:    "BGG request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
	}, []string{"endpoint"})

	bggErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_upstream_errors_total",
		Help: "Total BGG errors by kind",
	}, []string{"kind"})

	bggPacingWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_upstream_pacing_waits_total",
		Help: "Total number of times a request waited for the pacing limiter",
	})
)

// maxBodySize bounds how much of an upstream body is read.
const maxBodySize = 16 << 20

// Client is the BGG XML API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	limiter     *rate.Limiter
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of xmlapi2, e.g. https://boardgamegeek.com/xmlapi2
	BaseURL string

	// User-Agent header (REQUIRED)
	UserAgent string

	// Token is sent as a bearer token when set
	Token string

	// Timeout bounds a single upstream attempt
	Timeout time.Duration

	// Pacing
	RequestsPerSecond float64
	Burst             int

	// Retry applies to queued (202) and 5xx responses only
	Retry RetryConfig

	// Tracker holds the cooldown after upstream 429s. Defaults to an
	// in-memory tracker.
	Tracker *ratelimit.Tracker

	// HTTPClient overrides the transport (tests)
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:           "https://boardgamegeek.com/xmlapi2",
		UserAgent:         userAgent,
		Timeout:           20 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		Retry:             DefaultRetryConfig(),
		Logger:            zerolog.Nop(),
	}
}

// New creates a new BGG client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests_per_second must be > 0 (got %v)", cfg.RequestsPerSecond)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}

	logger := cfg.Logger

	tracker := cfg.Tracker
	if tracker == nil {
		tracker = ratelimit.NewTracker(ratelimit.NewMemoryStore(), logger)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		rateLimiter: tracker,
		config:      cfg,
		logger:      logger,
	}, nil
}

// SearchGames queries /search and returns the raw XML.
func (c *Client) SearchGames(ctx context.Context, query string, gameType bgg.GameType, exact bool) ([]byte, error) {
	params := url.Values{}
	params.Set("query", query)
	if gameType != "" {
		params.Set("type", string(gameType))
	}
	if exact {
		params.Set("exact", "1")
	}
	return c.Get(ctx, "/search", params)
}

// GetGameDetails fetches one game with statistics and versions.
func (c *Client) GetGameDetails(ctx context.Context, id string) ([]byte, error) {
	params := url.Values{}
	params.Set("id", id)
	params.Set("stats", "1")
	params.Set("versions", "1")
	return c.Get(ctx, "/thing", params)
}

// GetBatchMetadata fetches several games with statistics in one call.
func (c *Client) GetBatchMetadata(ctx context.Context, ids []string) ([]byte, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids to fetch")
	}
	params := url.Values{}
	params.Set("id", strings.Join(ids, ","))
	params.Set("stats", "1")
	return c.Get(ctx, "/thing", params)
}

// Get performs a paced GET against an xmlapi2 endpoint and returns the body.
// This is the core request method that orchestrates cooldown checks,
// pacing, retries and error classification.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (body []byte, err error) {
	ctx, span := tracing.StartSpan(ctx, "bgg.client.get")
	span.SetAttributes(attribute.String("bgg.endpoint", endpoint))
	defer func() { tracing.EndSpan(span, err) }()

	startTime := time.Now()
	defer func() {
		bggRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check upstream cooldown
	// Fail open when the state store is unavailable.
	allowed, wait, checkErr := c.rateLimiter.ShouldAllowRequest(ctx)
	if checkErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}
		c.logger.Warn().Err(checkErr).Msg("Rate limit check failed - sending request")
		allowed = true
	}
	if !allowed {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Dur("retry_after", wait).
			Msg("Request blocked by upstream cooldown")
		bggRequestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
		bggErrorsTotal.WithLabelValues(string(KindRateLimited)).Inc()
		return nil, &UpstreamError{
			Kind:       KindRateLimited,
			StatusCode: http.StatusTooManyRequests,
			Message:    "upstream cooldown active",
			RetryAfter: wait,
		}
	}

	reqURL := c.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", reqURL).
		Msg("Executing BGG request")

	// Step 2: Execute with retry on queued / server responses
	err = retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var attemptErr error
		body, attemptErr = c.do(ctx, endpoint, reqURL)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	if err := c.rateLimiter.RecordSuccess(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record upstream success")
	}
	return body, nil
}

// do performs a single attempt.
func (c *Client) do(ctx context.Context, endpoint, reqURL string) ([]byte, error) {
	// Pace outgoing requests
	if c.limiter.Tokens() < 1 {
		bggPacingWaitsTotal.Inc()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.transportError(endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, c.transportError(endpoint, err)
	}

	bggRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusOK:
		if msg, ok := bgg.ParseError(body); ok {
			kind := kindForMessage(msg)
			upErr := &UpstreamError{Kind: kind, StatusCode: resp.StatusCode, Message: msg}
			if kind == KindRateLimited {
				upErr.RetryAfter = c.recordRateLimit(ctx, resp.Header)
			}
			return nil, c.failed(endpoint, upErr)
		}
		return body, nil

	case resp.StatusCode == http.StatusAccepted:
		return nil, c.failed(endpoint, &UpstreamError{
			Kind:       KindQueued,
			StatusCode: resp.StatusCode,
			Message:    "request queued upstream",
		})

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.failed(endpoint, &UpstreamError{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			Message:    "rate limit exceeded",
			RetryAfter: c.recordRateLimit(ctx, resp.Header),
		})

	case resp.StatusCode == http.StatusNotFound:
		return nil, c.failed(endpoint, &UpstreamError{
			Kind:       KindNotFound,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		})

	case resp.StatusCode >= 500:
		return nil, c.failed(endpoint, &UpstreamError{
			Kind:       KindServer,
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		})

	default:
		msg := resp.Status
		if parsed, ok := bgg.ParseError(body); ok {
			msg = parsed
		}
		return nil, c.failed(endpoint, &UpstreamError{
			Kind:       KindClient,
			StatusCode: resp.StatusCode,
			Message:    msg,
		})
	}
}

// recordRateLimit starts a cooldown and returns its length.
func (c *Client) recordRateLimit(ctx context.Context, headers http.Header) time.Duration {
	cooldown, err := c.rateLimiter.RecordRateLimit(ctx, headers)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record upstream rate limit")
	}
	return cooldown
}

// transportError classifies a failure that produced no response.
func (c *Client) transportError(endpoint string, err error) error {
	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	bggRequestsTotal.WithLabelValues(endpoint, string(kind)).Inc()
	return c.failed(endpoint, &UpstreamError{Kind: kind, Message: "request failed", Err: err})
}

// failed records and logs a classified failure.
func (c *Client) failed(endpoint string, upErr *UpstreamError) error {
	bggErrorsTotal.WithLabelValues(string(upErr.Kind)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Int("status", upErr.StatusCode).
		Str("error_kind", string(upErr.Kind)).
		Str("message", upErr.Message).
		Msg("BGG request error")
	return upErr
}

// Tracker returns the rate limit tracker.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.rateLimiter
}
