package cache

import (
	"testing"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
)

func TestSearchKey(t *testing.T) {
	tests := []struct {
		name  string
		query string
		opts  SearchOptions
		want  string
	}{
		{
			name:  "defaults",
			query: "Catan",
			opts:  SearchOptions{},
			want:  "search:full:catan:exact=false:type=boardgame",
		},
		{
			name:  "trimmed and lower-cased",
			query: "  CATAN  ",
			opts:  SearchOptions{Type: bgg.TypeBoardGame},
			want:  "search:full:catan:exact=false:type=boardgame",
		},
		{
			name:  "exact expansion filter",
			query: "Seafarers",
			opts:  SearchOptions{Type: bgg.TypeExpansion, Exact: true},
			want:  "search:full:seafarers:exact=true:type=boardgameexpansion",
		},
		{
			name:  "light variant",
			query: "catan",
			opts:  SearchOptions{Light: true},
			want:  "search:light:catan:exact=false:type=boardgame",
		},
		{
			name:  "inner whitespace kept",
			query: " Ticket to Ride ",
			opts:  SearchOptions{},
			want:  "search:full:ticket to ride:exact=false:type=boardgame",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchKey(tt.query, tt.opts); got != tt.want {
				t.Errorf("SearchKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSearchKey_Deterministic(t *testing.T) {
	opts := SearchOptions{Type: bgg.TypeExpansion, Exact: true}
	first := SearchKey("Catan", opts)
	for i := 0; i < 100; i++ {
		if got := SearchKey("Catan", opts); got != first {
			t.Fatalf("SearchKey() not deterministic: %q vs %q", got, first)
		}
	}
}

func TestSearchKey_NormalizesQuery(t *testing.T) {
	opts := SearchOptions{Type: bgg.TypeBoardGame}
	if SearchKey("Catan", opts) != SearchKey("  catan  ", opts) {
		t.Error("\"Catan\" and \"  catan  \" must share a cache slot")
	}
	if SearchKey("Catan", opts) == SearchKey("Catan", SearchOptions{Type: bgg.TypeBoardGame, Exact: true}) {
		t.Error("different exact flags must not share a cache slot")
	}
	if SearchKey("Catan", SearchOptions{}) != SearchKey("Catan", opts) {
		t.Error("empty type must default to boardgame")
	}
}
