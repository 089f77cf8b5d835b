// Package bgg holds the BoardGameGeek domain records and the XML extraction
// functions that turn raw xmlapi2 markup into them.
package bgg

import "slices"

// GameType is the BGG thing type of a game.
type GameType string

const (
	// TypeBoardGame is a standalone game.
	TypeBoardGame GameType = "boardgame"

	// TypeExpansion is an expansion for one or more base games.
	TypeExpansion GameType = "boardgameexpansion"
)

// Valid reports whether t is one of the supported game types.
func (t GameType) Valid() bool {
	return t == TypeBoardGame || t == TypeExpansion
}

// GameMetadata is the full metadata record for one BGG id.
type GameMetadata struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	YearPublished int    `json:"yearPublished,omitempty"`
	MinPlayers    int    `json:"minPlayers,omitempty"`
	MaxPlayers    int    `json:"maxPlayers,omitempty"`
	PlayingTime   int    `json:"playingTime,omitempty"`
	MinPlayTime   int    `json:"minPlayTime,omitempty"`
	MaxPlayTime   int    `json:"maxPlayTime,omitempty"`
	MinAge        int    `json:"minAge,omitempty"`
	Description   string `json:"description,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Image         string `json:"image,omitempty"`

	AverageRating      float64 `json:"averageRating,omitempty"`
	BayesAverageRating float64 `json:"bayesAverageRating,omitempty"`
	UsersRated         int     `json:"usersRated,omitempty"`
	Weight             float64 `json:"weight,omitempty"`
	Rank               int     `json:"rank,omitempty"`

	Mechanics      []string `json:"mechanics,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Designers      []string `json:"designers,omitempty"`
	AlternateNames []string `json:"alternateNames,omitempty"`

	// Versions is nil when the record was fetched without version data and
	// an empty slice when versions were requested but none exist.
	Versions []Version `json:"versions,omitempty"`

	Type                    GameType `json:"type"`
	HasInboundExpansionLink bool     `json:"hasInboundExpansionLink"`
	IsExpansion             bool     `json:"isExpansion"`
}

// VersionsLoaded reports whether the record carries version data.
func (g *GameMetadata) VersionsLoaded() bool {
	return g.Versions != nil
}

// Clone returns a deep copy of g. Nil slices stay nil.
func (g *GameMetadata) Clone() *GameMetadata {
	if g == nil {
		return nil
	}
	c := *g
	c.Mechanics = slices.Clone(g.Mechanics)
	c.Categories = slices.Clone(g.Categories)
	c.Designers = slices.Clone(g.Designers)
	c.AlternateNames = slices.Clone(g.AlternateNames)
	if g.Versions != nil {
		c.Versions = make([]Version, len(g.Versions))
		for i, v := range g.Versions {
			v.Languages = slices.Clone(v.Languages)
			v.Publishers = slices.Clone(v.Publishers)
			c.Versions[i] = v
		}
	}
	return &c
}

// Version is a published edition of a game.
type Version struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	YearPublished int      `json:"yearPublished,omitempty"`
	Languages     []string `json:"languages,omitempty"`
	Publishers    []string `json:"publishers,omitempty"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	Image         string   `json:"image,omitempty"`
}

// SearchItem is a lightweight match returned by the upstream search endpoint.
type SearchItem struct {
	ID            string
	Name          string
	YearPublished int
	Type          GameType
}

// SearchResult is one entry of a resolved search. The enrichment fields are
// only set when HasMetadata is true.
type SearchResult struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	YearPublished int      `json:"yearPublished,omitempty"`
	Type          GameType `json:"type"`
	IsExpansion   bool     `json:"isExpansion"`
	Score         float64  `json:"score"`

	Thumbnail     string  `json:"thumbnail,omitempty"`
	Image         string  `json:"image,omitempty"`
	AverageRating float64 `json:"averageRating,omitempty"`
	Rank          int     `json:"rank,omitempty"`
	MinPlayers    int     `json:"minPlayers,omitempty"`
	MaxPlayers    int     `json:"maxPlayers,omitempty"`
	PlayingTime   int     `json:"playingTime,omitempty"`
	HasMetadata   bool    `json:"hasMetadata"`
}
