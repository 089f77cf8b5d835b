// Package ratelimit tracks upstream rate limiting and gates requests.
// After BGG answers 429 the tracker holds a cooldown window during which
// no request is sent, so the proxy backs off instead of digging deeper.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyCooldownUntil = "bgg:rate_limit:cooldown_until"
	RedisKeyStrikes       = "bgg:rate_limit:strikes"
	RedisKeyLastUpdate    = "bgg:rate_limit:last_update"
)

// Cooldown bounds.
const (
	// DefaultCooldown is the first cooldown when upstream sends no Retry-After.
	DefaultCooldown = 5 * time.Second

	// MaxCooldown caps both Retry-After values and strike backoff.
	MaxCooldown = 5 * time.Minute

	// StrikeThresholdWarning throttles requests after this many consecutive
	// rate limit responses, even once the cooldown has passed.
	StrikeThresholdWarning = 2

	// ThrottleDelay is the pause applied to each request while throttling.
	ThrottleDelay = 1 * time.Second
)

// RateLimitState represents the upstream rate limit state.
// It can be shared across replicas via Redis.
type RateLimitState struct {
	// CooldownUntil is when requests may be sent again.
	CooldownUntil time.Time `json:"cooldown_until"`

	// Strikes counts consecutive rate limit responses.
	// Reset to zero by the next successful upstream response.
	Strikes int `json:"strikes"`

	// LastUpdate is the timestamp when this state was last updated.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when there is no cooldown and no strike.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge at now.
func (s *RateLimitState) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// InCooldown returns true if requests must not be sent at now.
func (s *RateLimitState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// NeedsThrottling returns true if requests are allowed but should be paced.
func (s *RateLimitState) NeedsThrottling(now time.Time) bool {
	return s.Strikes >= StrikeThresholdWarning && !s.InCooldown(now)
}

// TimeUntilReset returns the remaining cooldown at now.
// Returns 0 if the cooldown has already passed.
func (s *RateLimitState) TimeUntilReset(now time.Time) time.Duration {
	d := s.CooldownUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth updates the IsHealthy field at now.
func (s *RateLimitState) UpdateHealth(now time.Time) {
	s.IsHealthy = s.Strikes == 0 && !s.InCooldown(now)
}

// BackoffForStrikes returns the cooldown for the given strike count:
// DefaultCooldown doubled per extra strike, capped at MaxCooldown.
func BackoffForStrikes(strikes int) time.Duration {
	if strikes < 1 {
		return 0
	}
	d := DefaultCooldown
	for i := 1; i < strikes; i++ {
		d *= 2
		if d >= MaxCooldown {
			return MaxCooldown
		}
	}
	return d
}
