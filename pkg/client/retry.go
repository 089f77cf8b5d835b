package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	bggRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_upstream_retries_total",
		Help: "Total number of upstream retry attempts by error kind",
	}, []string{"kind"})

	bggRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bgg_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for upstream retries by error kind",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})

	bggRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bgg_upstream_retry_exhausted_total",
		Help: "Total number of times upstream retry attempts were exhausted by error kind",
	}, []string{"kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// forKind adjusts the backoff for a failure kind. BGG asks queued
// requests to come back after a few seconds, so they start slower.
func (c RetryConfig) forKind(kind Kind) RetryConfig {
	if kind == KindQueued {
		c.InitialBackoff *= 2
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 1
	}
	return c
}

// retryWithBackoff executes fn with exponential backoff while it fails with
// a retryable UpstreamError. It respects context cancellation and adds
// jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, base RetryConfig, logger zerolog.Logger, fn func() error) error {
	var lastErr error
	var backoff time.Duration
	attempts := 0

	for attempt := 1; ; attempt++ {
		attempts = attempt
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Upstream request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		kind := kindOf(err)
		if !shouldRetry(kind) {
			return lastErr
		}

		config := base.forKind(kind)
		if attempt >= config.MaxAttempts {
			bggRetryExhaustedTotal.WithLabelValues(string(kind)).Inc()
			break
		}

		if backoff == 0 {
			backoff = config.InitialBackoff
		}

		bggRetriesTotal.WithLabelValues(string(kind)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		bggRetryBackoffSeconds.WithLabelValues(string(kind)).Observe(jitter.Seconds())

		logger.Warn().
			Str("error_kind", string(kind)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	logger.Warn().
		Str("error_kind", string(kindOf(lastErr))).
		Int("attempts", attempts).
		Msg("Upstream retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
