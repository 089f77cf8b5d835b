// Package warmup pre-resolves a configured list of game ids at startup so
// the first user requests for popular games are served from cache.
//
// Ids are split into chunks of the resolver's maximum batch size and each
// chunk is resolved by a bounded worker pool. A chunk costs at most one
// upstream request; ids already cached cost nothing.
//
// Example:
//
//	w := warmup.New(service, warmup.Config{Concurrency: 2, ChunkSize: 20}, logger)
//	report, err := w.Run(ctx, []string{"13", "174430", "161936"})
//	if err != nil {
//	    logger.Warn().Err(err).Msg("Warmup interrupted")
//	}
//	logger.Info().Int("warmed", report.Warmed).Msg("Warmup finished")
package warmup
