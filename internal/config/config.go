// Package config loads the proxy configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/client"
	"github.com/tabletop-exchange/bgg-proxy/pkg/logging"
	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
	"github.com/tabletop-exchange/bgg-proxy/pkg/tracing"
	"github.com/tabletop-exchange/bgg-proxy/pkg/warmup"
)

// ServiceName is reported in logs and traces.
const ServiceName = "bgg-proxy"

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

// Config is the service configuration read from the environment.
// Load fills defaults; Validate reports values the service cannot run with.
type Config struct {
	// ListenAddr is the address the HTTP server binds to.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogPretty switches to human-readable console output.
	LogPretty bool `env:"LOG_PRETTY" envDefault:"false"`

	// BGGBaseURL is the xmlapi2 root.
	BGGBaseURL string `env:"BGG_BASE_URL" envDefault:"https://boardgamegeek.com/xmlapi2"`
	// BGGAPIToken is sent as a bearer token when set.
	BGGAPIToken string `env:"BGG_API_TOKEN"`
	// UserAgent identifies the proxy to BGG. Required.
	UserAgent string `env:"USER_AGENT" envDefault:"bgg-proxy/0.1.0"`
	// UpstreamTimeout bounds every upstream call.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"20s"`
	// UpstreamRPS is the steady request rate sent to BGG.
	UpstreamRPS float64 `env:"UPSTREAM_RPS" envDefault:"2"`
	// UpstreamBurst is the number of requests allowed above UpstreamRPS.
	UpstreamBurst int `env:"UPSTREAM_BURST" envDefault:"4"`
	// UpstreamMaxRetries is the number of attempts for queued and 5xx responses.
	UpstreamMaxRetries int `env:"UPSTREAM_MAX_RETRIES" envDefault:"3"`

	MetadataTTL        time.Duration `env:"METADATA_TTL" envDefault:"24h"`
	SearchTTL          time.Duration `env:"SEARCH_TTL" envDefault:"1h"`
	MetadataMaxEntries uint64        `env:"METADATA_MAX_ENTRIES" envDefault:"10000"`
	SearchMaxEntries   uint64        `env:"SEARCH_MAX_ENTRIES" envDefault:"2000"`

	MaxBatchSize   int `env:"MAX_BATCH_SIZE" envDefault:"20"`
	MinQueryLength int `env:"MIN_QUERY_LENGTH" envDefault:"2"`
	EnrichLimit    int `env:"ENRICH_LIMIT" envDefault:"10"`
	SearchPageSize int `env:"SEARCH_PAGE_SIZE" envDefault:"50"`

	// RedisURL enables the shared upstream cooldown store, e.g.
	// redis://localhost:6379/0. Empty keeps the state in memory.
	RedisURL string `env:"REDIS_URL"`

	// WarmGameIDs are resolved in the background at startup.
	WarmGameIDs []string `env:"WARM_GAME_IDS" envSeparator:","`
	// WarmConcurrency is the number of warmup batches in flight.
	WarmConcurrency int `env:"WARM_CONCURRENCY" envDefault:"2"`

	OTelEnabled         bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint        string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelTraceSampleRate float64 `env:"OTEL_TRACE_SAMPLE_RATE" envDefault:"0.1"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests
	// to complete during graceful shutdown.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Load parses configuration from environment variables and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFrom is Load reading from the given map instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.UserAgent == "" {
		errs = append(errs, errors.New("USER_AGENT is required"))
	}
	if c.MetadataTTL <= 0 || c.SearchTTL <= 0 {
		errs = append(errs, errors.New("METADATA_TTL and SEARCH_TTL must be positive"))
	} else if c.MetadataTTL < c.SearchTTL {
		errs = append(errs, fmt.Errorf("METADATA_TTL (%s) must not be shorter than SEARCH_TTL (%s)", c.MetadataTTL, c.SearchTTL))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if c.SearchPageSize <= 0 {
		errs = append(errs, errors.New("SEARCH_PAGE_SIZE must be positive"))
	}
	if c.UpstreamRPS <= 0 {
		errs = append(errs, errors.New("UPSTREAM_RPS must be positive"))
	}
	if c.UpstreamMaxRetries < 1 {
		errs = append(errs, errors.New("UPSTREAM_MAX_RETRIES must be at least 1"))
	}
	if c.OTelTraceSampleRate < 0 || c.OTelTraceSampleRate > 1 {
		errs = append(errs, errors.New("OTEL_TRACE_SAMPLE_RATE must be within [0, 1]"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logging returns the logger settings.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Tracing returns the tracer settings.
func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		SampleRate:     c.OTelTraceSampleRate,
		ServiceName:    ServiceName,
		ServiceVersion: Version,
	}
}

// Cache returns the cache manager settings.
func (c Config) Cache() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.MetadataTTL = c.MetadataTTL
	cfg.SearchTTL = c.SearchTTL
	cfg.MaxMetadataEntries = c.MetadataMaxEntries
	cfg.MaxSearchEntries = c.SearchMaxEntries
	return cfg
}

// Client returns the upstream client settings without tracker or logger.
func (c Config) Client() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.BaseURL = c.BGGBaseURL
	cfg.Token = c.BGGAPIToken
	cfg.Timeout = c.UpstreamTimeout
	cfg.RequestsPerSecond = c.UpstreamRPS
	cfg.Burst = c.UpstreamBurst
	cfg.Retry.MaxAttempts = c.UpstreamMaxRetries
	return cfg
}

// Resolver returns the resolver settings.
func (c Config) Resolver() resolver.Config {
	return resolver.Config{
		MaxBatchSize:    c.MaxBatchSize,
		MinQueryLength:  c.MinQueryLength,
		EnrichLimit:     c.EnrichLimit,
		SearchPageSize:  c.SearchPageSize,
		UpstreamTimeout: c.UpstreamTimeout,
	}
}

// Warmup returns the cache warmer settings.
func (c Config) Warmup() warmup.Config {
	cfg := warmup.DefaultConfig()
	cfg.Concurrency = c.WarmConcurrency
	cfg.ChunkSize = c.MaxBatchSize
	return cfg
}
