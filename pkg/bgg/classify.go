package bgg

// IsExpansion reports whether a game should be treated as an expansion.
// Upstream sometimes labels expansions as plain board games; an inbound
// expansion link from a base game is the tie breaker.
func IsExpansion(t GameType, hasInboundExpansionLink bool) bool {
	return t == TypeExpansion || hasInboundExpansionLink
}

// Classify sets the derived expansion fields on g. It is idempotent.
func Classify(g *GameMetadata) {
	if g == nil {
		return
	}
	g.IsExpansion = IsExpansion(g.Type, g.HasInboundExpansionLink)
	if g.IsExpansion {
		g.Type = TypeExpansion
	} else if g.Type == "" {
		g.Type = TypeBoardGame
	}
}

// ToSearchResult builds a bare search result for a search item.
func ToSearchResult(item SearchItem, score float64) SearchResult {
	t := item.Type
	if t == "" {
		t = TypeBoardGame
	}
	return SearchResult{
		ID:            item.ID,
		Name:          item.Name,
		YearPublished: item.YearPublished,
		Type:          t,
		IsExpansion:   IsExpansion(t, false),
		Score:         score,
	}
}

// Enrich copies metadata fields onto a search result. The metadata record is
// expected to be classified already.
func Enrich(r SearchResult, g *GameMetadata) SearchResult {
	if g == nil {
		return r
	}
	r.Thumbnail = g.Thumbnail
	r.Image = g.Image
	r.AverageRating = g.AverageRating
	r.Rank = g.Rank
	r.MinPlayers = g.MinPlayers
	r.MaxPlayers = g.MaxPlayers
	r.PlayingTime = g.PlayingTime
	r.IsExpansion = r.IsExpansion || g.IsExpansion
	if r.IsExpansion {
		r.Type = TypeExpansion
	}
	if r.YearPublished == 0 {
		r.YearPublished = g.YearPublished
	}
	r.HasMetadata = true
	return r
}

// Lighten strips enrichment fields, leaving the light search shape.
func Lighten(r SearchResult) SearchResult {
	return SearchResult{
		ID:            r.ID,
		Name:          r.Name,
		YearPublished: r.YearPublished,
		Type:          r.Type,
		IsExpansion:   r.IsExpansion,
		Score:         r.Score,
	}
}
