package resolver

import (
	"context"
	"fmt"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
)

// Summary counts the outcomes of a batch.
type Summary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	FromCache  int `json:"fromCache"`
	Fetched    int `json:"fetched"`
}

// BatchResult holds one entry per requested id, in request order.
type BatchResult struct {
	Entries []Entry
	Summary Summary
}

// ResolveBatch resolves up to MaxBatchSize ids with at most one upstream
// call. Ids past the limit are dropped. Per-id failures are reported in
// the entries; only invalid input fails the whole call.
func (s *Service) ResolveBatch(ctx context.Context, ids []string) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one game id is required", ErrInvalidInput)
	}

	if len(ids) > s.cfg.MaxBatchSize {
		s.logger.Warn().
			Int("requested", len(ids)).
			Int("max_batch_size", s.cfg.MaxBatchSize).
			Msg("Batch truncated")
		ids = ids[:s.cfg.MaxBatchSize]
	}

	clean := make([]string, len(ids))
	for i, id := range ids {
		norm, err := normalizeID(id)
		if err != nil {
			return nil, err
		}
		clean[i] = norm
	}

	entries := s.resolve(ctx, clean, s.batchPlan())
	return &BatchResult{Entries: entries, Summary: summarize(entries)}, nil
}

// ResolveGame resolves a single game as a batch of one.
func (s *Service) ResolveGame(ctx context.Context, id string) (*bgg.GameMetadata, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	entry := s.resolve(ctx, []string{id}, s.batchPlan())[0]
	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Game, nil
}

// ResolveGameDetails resolves a game together with its versions in one
// upstream round trip. A cached record without loaded versions is
// refetched; the single answer refreshes both metadata and versions.
func (s *Service) ResolveGameDetails(ctx context.Context, id string) (*bgg.GameMetadata, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}

	entry := s.resolve(ctx, []string{id}, s.detailsPlan())[0]
	if entry.Err != nil {
		return nil, entry.Err
	}
	return entry.Game, nil
}

func summarize(entries []Entry) Summary {
	sum := Summary{Total: len(entries)}
	for _, e := range entries {
		if e.Err != nil {
			sum.Failed++
			continue
		}
		sum.Successful++
		switch e.Source {
		case SourceCache:
			sum.FromCache++
		case SourceUpstream:
			sum.Fetched++
		}
	}
	return sum
}
