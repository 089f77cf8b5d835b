package warmup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/tabletop-exchange/bgg-proxy/pkg/resolver"
)

var warmedIDsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bgg_warmup_ids_total",
	Help: "Game ids processed by the cache warmer by outcome",
}, []string{"outcome"})

// BatchResolver is the part of the resolver the warmer needs.
type BatchResolver interface {
	ResolveBatch(ctx context.Context, ids []string) (*resolver.BatchResult, error)
}

// Config holds warmer configuration.
type Config struct {
	// Concurrency is the number of chunks resolved in parallel.
	// Keep it low: every worker competes for the same upstream pacing budget.
	Concurrency int
	// ChunkSize is the number of ids per batch (the resolver's max batch size)
	ChunkSize int
	// Timeout per chunk
	Timeout time.Duration
}

// DefaultConfig returns the default warmer configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 2,
		ChunkSize:   resolver.DefaultConfig().MaxBatchSize,
		Timeout:     60 * time.Second,
	}
}

// Report summarizes a warmup run.
type Report struct {
	Requested int           `json:"requested"`
	Chunks    int           `json:"chunks"`
	Warmed    int           `json:"warmed"`
	Failed    int           `json:"failed"`
	FromCache int           `json:"fromCache"`
	Duration  time.Duration `json:"duration"`
}

type chunkResult struct {
	index   int
	summary resolver.Summary
	err     error
}

// Warmer resolves id lists through a worker pool.
type Warmer struct {
	resolver BatchResolver
	config   Config
	logger   zerolog.Logger
}

// New creates a warmer. Non-positive config values fall back to defaults.
func New(r BatchResolver, config Config, logger zerolog.Logger) *Warmer {
	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &Warmer{
		resolver: r,
		config:   config,
		logger:   logger,
	}
}

// Run resolves every id and returns the aggregated report. Per-id failures
// are counted, not returned. An error is returned only when ctx ends
// before every chunk was processed; the report then holds partial counts.
func (w *Warmer) Run(ctx context.Context, ids []string) (*Report, error) {
	start := time.Now()
	ids = dedupe(ids)
	chunks := chunk(ids, w.config.ChunkSize)

	report := &Report{Requested: len(ids), Chunks: len(chunks)}
	if len(chunks) == 0 {
		return report, nil
	}

	w.logger.Info().
		Int("ids", len(ids)).
		Int("chunks", len(chunks)).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting cache warmup")

	queue := make(chan int, len(chunks))
	for i := range chunks {
		queue <- i
	}
	close(queue)

	results := make(chan chunkResult, len(chunks))

	var wg sync.WaitGroup
	workers := min(w.config.Concurrency, len(chunks))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go w.worker(ctx, chunks, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	processed := 0
	for res := range results {
		processed++
		if res.err != nil {
			// the whole chunk failed before any id was resolved
			report.Failed += len(chunks[res.index])
			warmedIDsTotal.WithLabelValues("failed").Add(float64(len(chunks[res.index])))
			w.logger.Warn().
				Err(res.err).
				Int("chunk", res.index).
				Msg("Warmup chunk failed")
			continue
		}
		report.Warmed += res.summary.Successful
		report.Failed += res.summary.Failed
		report.FromCache += res.summary.FromCache
		warmedIDsTotal.WithLabelValues("ok").Add(float64(res.summary.Successful))
		warmedIDsTotal.WithLabelValues("failed").Add(float64(res.summary.Failed))
	}
	report.Duration = time.Since(start)

	if processed < len(chunks) {
		w.logger.Warn().
			Int("processed_chunks", processed).
			Int("total_chunks", len(chunks)).
			Msg("Warmup interrupted - returning partial report")
		return report, fmt.Errorf("warmup interrupted (%d/%d chunks): %w", processed, len(chunks), ctx.Err())
	}

	w.logger.Info().
		Int("warmed", report.Warmed).
		Int("failed", report.Failed).
		Int("from_cache", report.FromCache).
		Dur("duration", report.Duration).
		Msg("Cache warmup complete")

	return report, nil
}

// worker resolves chunks from the queue until it is drained or ctx ends.
func (w *Warmer) worker(ctx context.Context, chunks [][]string, queue <-chan int, results chan<- chunkResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for idx := range queue {
		select {
		case <-ctx.Done():
			w.logger.Debug().
				Int("worker_id", workerID).
				Int("chunks_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		default:
		}

		chunkCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
		res, err := w.resolver.ResolveBatch(chunkCtx, chunks[idx])
		cancel()

		out := chunkResult{index: idx, err: err}
		if err == nil {
			out.summary = res.Summary
		}
		results <- out
		processed++
	}

	w.logger.Debug().
		Int("worker_id", workerID).
		Int("chunks_processed", processed).
		Msg("Worker completed")
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func chunk(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
