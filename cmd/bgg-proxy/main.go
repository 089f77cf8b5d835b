package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tabletop-exchange/bgg-proxy/internal/api"
	"github.com/tabletop-exchange/bgg-proxy/internal/config"
	"github.com/tabletop-exchange/bgg-proxy/pkg/cache"
	"github.com/tabletop-exchange/bgg-proxy/pkg/client"
	"github.com/tabletop-exchange/bgg-proxy/pkg/logging"
	"github.com/tabletop-exchange/bgg-proxy/pkg/ratelimit"
	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
	"github.com/tabletop-exchange/bgg-proxy/pkg/tracing"
	"github.com/tabletop-exchange/bgg-proxy/pkg/warmup"
)

func main() {
	// .env is optional; real environment variables take precedence
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging())
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Warn().Err(envErr).Msg("Failed to read .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing())
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if len(cfg.WarmGameIDs) > 0 {
		go a.warm(ctx, cfg.WarmGameIDs)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a full search may wait on two upstream calls
		WriteTimeout: 2*cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("user_agent", cfg.UserAgent).
			Str("version", config.Version).
			Msg("Starting BGG proxy server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info().Msg("Server stopped")
	return nil
}

// app holds the wired components.
type app struct {
	handler  http.Handler
	service  *resolver.Service
	cache    *cache.Manager
	warmCfg  warmup.Config
	logger   zerolog.Logger
	closeFns []func() error
}

// newApp connects the optional Redis store and builds the client, cache,
// resolver and router.
func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{warmCfg: cfg.Warmup(), logger: logger}

	var (
		store ratelimit.Store
		ready api.ReadyFunc
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		a.closeFns = append(a.closeFns, rdb.Close)

		if err := rdb.Ping(ctx).Err(); err != nil {
			// /ready reports the outage until Redis answers
			logger.Warn().Err(err).Str("addr", opts.Addr).Msg("Redis not reachable at startup")
		} else {
			logger.Info().Str("addr", opts.Addr).Msg("Connected to Redis")
		}

		store = ratelimit.NewRedisStore(rdb)
		ready = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	tracker := ratelimit.NewTracker(store, logging.WithComponent(logger, logging.ComponentRateLimit))

	clientCfg := cfg.Client()
	clientCfg.Tracker = tracker
	clientCfg.Logger = logging.WithComponent(logger, logging.ComponentClient)
	bggClient, err := client.New(clientCfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create BGG client: %w", err)
	}

	manager, err := cache.NewManager(cfg.Cache(), logging.WithComponent(logger, logging.ComponentCache))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	a.cache = manager
	a.service = resolver.New(manager, bggClient,
		resolver.WithConfig(cfg.Resolver()),
		resolver.WithLogger(logging.WithComponent(logger, logging.ComponentResolver)),
	)
	a.handler = api.NewRouter(api.Dependencies{
		Resolver: a.service,
		Cache:    manager,
		Ready:    ready,
		Logger:   logging.WithComponent(logger, logging.ComponentAPI),
	})

	return a, nil
}

// warm pre-resolves ids; failures are logged and never stop the server.
func (a *app) warm(ctx context.Context, ids []string) *warmup.Report {
	logger := logging.WithComponent(a.logger, logging.ComponentWarmup)
	report, err := warmup.New(a.service, a.warmCfg, logger).Run(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache warmup interrupted")
	}
	return report
}

func (a *app) close() {
	for _, fn := range a.closeFns {
		if err := fn(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}
