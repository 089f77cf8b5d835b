package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newTestTracker returns a memory backed tracker with a fixed clock and a
// recording sleep.
func newTestTracker(t *testing.T) (*Tracker, *time.Time, *[]time.Duration) {
	t.Helper()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration

	tracker := NewTracker(NewMemoryStore(), zerolog.Nop())
	tracker.now = func() time.Time { return now }
	tracker.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return tracker, &now, &slept
}

func TestTracker_GetState_Default(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsHealthy || state.Strikes != 0 {
		t.Errorf("default state = %+v, want healthy without strikes", state)
	}
}

func TestTracker_RecordRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		want       time.Duration
	}{
		{name: "no header uses backoff", retryAfter: "", want: DefaultCooldown},
		{name: "seconds", retryAfter: "30", want: 30 * time.Second},
		{name: "capped", retryAfter: "3600", want: MaxCooldown},
		{name: "garbage uses backoff", retryAfter: "soon", want: DefaultCooldown},
		{name: "http date", retryAfter: "Mon, 01 Jan 2024 12:01:00 GMT", want: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, now, _ := newTestTracker(t)
			ctx := context.Background()

			headers := http.Header{}
			if tt.retryAfter != "" {
				headers.Set("Retry-After", tt.retryAfter)
			}

			got, err := tracker.RecordRateLimit(ctx, headers)
			if err != nil {
				t.Fatalf("RecordRateLimit() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RecordRateLimit() = %v, want %v", got, tt.want)
			}

			state, _ := tracker.GetState(ctx)
			if state.Strikes != 1 {
				t.Errorf("Strikes = %d, want 1", state.Strikes)
			}
			if !state.CooldownUntil.Equal(now.Add(tt.want)) {
				t.Errorf("CooldownUntil = %v, want %v", state.CooldownUntil, now.Add(tt.want))
			}
			if state.IsHealthy {
				t.Error("state healthy right after a rate limit")
			}
		})
	}
}

func TestTracker_RecordRateLimit_Escalates(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	var last time.Duration
	for i := 1; i <= 3; i++ {
		d, err := tracker.RecordRateLimit(ctx, http.Header{})
		if err != nil {
			t.Fatalf("RecordRateLimit() error = %v", err)
		}
		if d != BackoffForStrikes(i) {
			t.Errorf("strike %d cooldown = %v, want %v", i, d, BackoffForStrikes(i))
		}
		if d <= last {
			t.Errorf("strike %d cooldown %v did not grow past %v", i, d, last)
		}
		last = d
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	tracker, now, slept := newTestTracker(t)
	ctx := context.Background()

	allowed, wait, err := tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed || wait != 0 {
		t.Fatalf("ShouldAllowRequest() = %v, %v, %v on clean state", allowed, wait, err)
	}

	if _, err := tracker.RecordRateLimit(ctx, http.Header{"Retry-After": []string{"10"}}); err != nil {
		t.Fatalf("RecordRateLimit() error = %v", err)
	}

	allowed, wait, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("request allowed during cooldown")
	}
	if wait != 10*time.Second {
		t.Errorf("wait = %v, want 10s", wait)
	}

	// Cooldown over, one strike: allowed without throttling
	*now = now.Add(11 * time.Second)
	allowed, _, _ = tracker.ShouldAllowRequest(ctx)
	if !allowed {
		t.Error("request blocked after cooldown")
	}
	if len(*slept) != 0 {
		t.Errorf("throttled with a single strike: %v", *slept)
	}
}

func TestTracker_ShouldAllowRequest_Throttles(t *testing.T) {
	tracker, now, slept := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < StrikeThresholdWarning; i++ {
		if _, err := tracker.RecordRateLimit(ctx, http.Header{"Retry-After": []string{"1"}}); err != nil {
			t.Fatalf("RecordRateLimit() error = %v", err)
		}
	}
	*now = now.Add(2 * time.Second)

	allowed, _, err := tracker.ShouldAllowRequest(ctx)
	if err != nil || !allowed {
		t.Fatalf("ShouldAllowRequest() = %v, %v, want allowed", allowed, err)
	}
	if len(*slept) != 1 || (*slept)[0] != ThrottleDelay {
		t.Errorf("slept = %v, want one ThrottleDelay", *slept)
	}
}

func TestTracker_ShouldAllowRequest_CanceledWhileThrottling(t *testing.T) {
	tracker, now, _ := newTestTracker(t)
	tracker.sleep = sleepContext

	ctx := context.Background()
	for i := 0; i < StrikeThresholdWarning; i++ {
		tracker.RecordRateLimit(ctx, http.Header{"Retry-After": []string{"1"}})
	}
	*now = now.Add(2 * time.Second)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	allowed, _, err := tracker.ShouldAllowRequest(canceled)
	if allowed {
		t.Error("request allowed with a canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestTracker_RecordSuccess(t *testing.T) {
	tracker, now, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess() on clean state error = %v", err)
	}
	if state, _ := tracker.store.Load(ctx); state != nil {
		t.Errorf("RecordSuccess() wrote state without strikes: %+v", state)
	}

	tracker.RecordRateLimit(ctx, http.Header{"Retry-After": []string{"5"}})
	*now = now.Add(6 * time.Second)

	if err := tracker.RecordSuccess(ctx); err != nil {
		t.Fatalf("RecordSuccess() error = %v", err)
	}

	state, _ := tracker.GetState(ctx)
	if state.Strikes != 0 {
		t.Errorf("Strikes = %d, want 0", state.Strikes)
	}
	if !state.IsHealthy {
		t.Error("state not healthy after success past cooldown")
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "empty", value: "", wantOK: false},
		{name: "seconds", value: "120", want: 2 * time.Minute, wantOK: true},
		{name: "padded", value: " 7 ", want: 7 * time.Second, wantOK: true},
		{name: "negative", value: "-1", wantOK: false},
		{name: "past date", value: "Mon, 01 Jan 2024 11:00:00 GMT", want: 0, wantOK: true},
		{name: "invalid", value: "later", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRetryAfter(tt.value, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, %v, want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
