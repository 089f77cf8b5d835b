package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_InCooldown(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		cooldownUntil time.Time
		want          bool
	}{
		{name: "no cooldown", cooldownUntil: time.Time{}, want: false},
		{name: "cooldown ahead", cooldownUntil: now.Add(10 * time.Second), want: true},
		{name: "cooldown passed", cooldownUntil: now.Add(-time.Second), want: false},
		{name: "cooldown ends now", cooldownUntil: now, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{CooldownUntil: tt.cooldownUntil}
			if got := state.InCooldown(now); got != tt.want {
				t.Errorf("InCooldown() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRateLimitState_NeedsThrottling(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		strikes       int
		cooldownUntil time.Time
		want          bool
	}{
		{name: "no strikes", strikes: 0, want: false},
		{name: "single strike", strikes: 1, want: false},
		{name: "at threshold", strikes: StrikeThresholdWarning, want: true},
		{name: "threshold but cooling down", strikes: 3, cooldownUntil: now.Add(time.Minute), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{Strikes: tt.strikes, CooldownUntil: tt.cooldownUntil}
			if got := state.NeedsThrottling(now); got != tt.want {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	state := &RateLimitState{CooldownUntil: now.Add(30 * time.Second)}
	if got := state.TimeUntilReset(now); got != 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want 30s", got)
	}

	state.CooldownUntil = now.Add(-time.Minute)
	if got := state.TimeUntilReset(now); got != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 after cooldown", got)
	}
}

func TestRateLimitState_UpdateHealth(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		state RateLimitState
		want  bool
	}{
		{name: "clean", state: RateLimitState{}, want: true},
		{name: "strikes", state: RateLimitState{Strikes: 1}, want: false},
		{name: "cooldown", state: RateLimitState{CooldownUntil: now.Add(time.Second)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.state.UpdateHealth(now)
			if tt.state.IsHealthy != tt.want {
				t.Errorf("IsHealthy = %v, want %v", tt.state.IsHealthy, tt.want)
			}
		})
	}
}

func TestRateLimitState_IsStale(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	state := &RateLimitState{LastUpdate: now.Add(-2 * time.Minute)}

	if !state.IsStale(now, time.Minute) {
		t.Error("IsStale(1m) = false, want true")
	}
	if state.IsStale(now, 5*time.Minute) {
		t.Error("IsStale(5m) = true, want false")
	}
}

func TestBackoffForStrikes(t *testing.T) {
	tests := []struct {
		strikes int
		want    time.Duration
	}{
		{strikes: 0, want: 0},
		{strikes: 1, want: 5 * time.Second},
		{strikes: 2, want: 10 * time.Second},
		{strikes: 3, want: 20 * time.Second},
		{strikes: 6, want: 160 * time.Second},
		{strikes: 7, want: MaxCooldown},
		{strikes: 50, want: MaxCooldown},
	}

	for _, tt := range tests {
		if got := BackoffForStrikes(tt.strikes); got != tt.want {
			t.Errorf("BackoffForStrikes(%d) = %v, want %v", tt.strikes, got, tt.want)
		}
	}
}
