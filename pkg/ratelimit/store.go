package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists the rate limit state.
type Store interface {
	// Load returns the stored state, or nil if none was stored yet.
	Load(ctx context.Context) (*RateLimitState, error)

	// Save replaces the stored state.
	Save(ctx context.Context, state *RateLimitState) error
}

// MemoryStore keeps the state in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	state *RateLimitState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context) (*RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return nil, nil
	}
	s := *m.state
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, state *RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *state
	m.state = &s
	return nil
}

// RedisStore shares the state between replicas through Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context) (*RateLimitState, error) {
	cooldownNanos, err := r.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown: %w", err)
	}

	strikes, err := r.redis.Get(ctx, RedisKeyStrikes).Int()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get strikes: %w", err)
	}

	lastUpdateStr, err := r.redis.Get(ctx, RedisKeyLastUpdate).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	// Nothing written yet
	if err == redis.Nil {
		return nil, nil
	}

	var lastUpdate time.Time
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &lastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	state := &RateLimitState{
		Strikes:    strikes,
		LastUpdate: lastUpdate,
	}
	if cooldownNanos > 0 {
		state.CooldownUntil = time.Unix(0, cooldownNanos)
	}
	return state, nil
}

// Save implements Store. All keys are written in one pipeline.
func (r *RedisStore) Save(ctx context.Context, state *RateLimitState) error {
	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	var cooldownNanos int64
	if !state.CooldownUntil.IsZero() {
		cooldownNanos = state.CooldownUntil.UnixNano()
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, RedisKeyCooldownUntil, cooldownNanos, 0)
	pipe.Set(ctx, RedisKeyStrikes, state.Strikes, 0)
	pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	return nil
}
