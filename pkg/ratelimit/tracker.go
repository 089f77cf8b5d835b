package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	bggRateLimitStrikes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bgg_rate_limit_strikes",
		Help: "Consecutive upstream rate limit responses",
	})

	bggRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_rate_limit_blocks_total",
		Help: "Total number of requests blocked during an upstream cooldown",
	})

	bggRateLimitThrottlesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bgg_rate_limit_throttles_total",
		Help: "Total number of requests throttled after repeated rate limiting",
	})
)

// Tracker monitors upstream rate limiting and gates requests.
type Tracker struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	// mu serializes read-modify-write updates from this process.
	mu sync.Mutex
}

// NewTracker creates a new rate limit tracker. A nil store keeps the
// state in memory.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// GetState retrieves the current rate limit state.
// Returns a default healthy state if nothing was stored yet.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	now := t.now()
	if state == nil {
		t.logger.Debug().Msg("No rate limit state stored, returning default healthy state")
		return &RateLimitState{LastUpdate: now, IsHealthy: true}, nil
	}
	state.UpdateHealth(now)
	return state, nil
}

// RecordRateLimit registers an upstream rate limit response and starts a
// cooldown. The cooldown honours Retry-After (seconds or HTTP date) and
// otherwise grows with the strike count. Returns the cooldown applied.
func (t *Tracker) RecordRateLimit(ctx context.Context, headers http.Header) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.GetState(ctx)
	if err != nil {
		return 0, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()
	state.Strikes++
	cooldown := BackoffForStrikes(state.Strikes)
	if d, ok := parseRetryAfter(headers.Get("Retry-After"), now); ok {
		cooldown = d
	}
	if cooldown > MaxCooldown {
		cooldown = MaxCooldown
	}

	state.CooldownUntil = now.Add(cooldown)
	state.LastUpdate = now
	state.UpdateHealth(now)

	if err := t.store.Save(ctx, state); err != nil {
		return cooldown, fmt.Errorf("save rate limit state: %w", err)
	}

	bggRateLimitStrikes.Set(float64(state.Strikes))
	t.logger.Warn().
		Int("strikes", state.Strikes).
		Dur("cooldown", cooldown).
		Time("cooldown_until", state.CooldownUntil).
		Msg("Upstream rate limited - cooling down")

	return cooldown, nil
}

// RecordSuccess clears the strike count after a successful response.
// It only writes when there is something to clear.
func (t *Tracker) RecordSuccess(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}
	if state.Strikes == 0 {
		return nil
	}

	now := t.now()
	state.Strikes = 0
	state.LastUpdate = now
	state.UpdateHealth(now)
	if err := t.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save rate limit state: %w", err)
	}

	bggRateLimitStrikes.Set(0)
	t.logger.Info().Msg("Upstream rate limit state recovered")
	return nil
}

// ShouldAllowRequest checks if a request may be sent upstream.
// Returns false and the remaining cooldown while cooling down.
// Returns true but pauses first when throttling after repeated strikes.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.now()

	// Cooldown: block all requests
	if state.InCooldown(now) {
		wait := state.TimeUntilReset(now)
		t.logger.Warn().
			Int("strikes", state.Strikes).
			Dur("wait_duration", wait).
			Msg("Upstream cooldown active - blocking request")

		bggRateLimitBlocksTotal.Inc()
		return false, wait, nil
	}

	// Repeated strikes: throttle
	if state.NeedsThrottling(now) {
		t.logger.Warn().
			Int("strikes", state.Strikes).
			Msg("Repeated upstream rate limiting - throttling request")

		bggRateLimitThrottlesTotal.Inc()
		if err := t.sleep(ctx, ThrottleDelay); err != nil {
			return false, 0, err
		}
	}

	return true, 0, nil
}

// parseRetryAfter parses a Retry-After value given as seconds or HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
