// Package logging configures zerolog for the proxy and provides the HTTP
// access log middleware.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used in the "component" field.
const (
	ComponentCache     = "cache"
	ComponentResolver  = "resolver"
	ComponentClient    = "bgg-client"
	ComponentRateLimit = "ratelimit"
	ComponentWarmup    = "warmup"
	ComponentAPI       = "api"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", "bgg-proxy").
		Logger()

	log.Logger = logger
	return logger
}

// parseLevel converts LogLevel to zerolog.Level, defaulting to info.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithComponent returns parent tagged with the component field. Packages
// log through the logger they are given; only the wiring code tags it.
func WithComponent(parent zerolog.Logger, component string) zerolog.Logger {
	return parent.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug:
//   - Cache lookups (id or key, cache_hit)
//   - Outgoing BGG request URLs
//
// Info:
//   - Startup, shutdown, cache clears
//   - Upstream fetch summaries (requested, parsed, stored)
//   - Warmup progress
//   - Rate limit recovery
//
// Warn:
//   - Upstream retries and cooldowns
//   - Swallowed search enrichment failures
//   - Truncated batches
//   - 4xx responses
//
// Error:
//   - 5xx responses
//   - Failed upstream calls surfaced to callers
//   - Configuration errors
//
// Context Fields:
//   - component: see the Component constants
//   - endpoint: BGG endpoint path
//   - status: HTTP status code
//   - duration: request or fetch duration
//   - error_kind: upstream error kind
//   - cache_hit: lookup outcome
//   - strikes / cooldown: rate limit state
//   - request_id: HTTP request id
