package bgg

import "testing"

func TestIsExpansion(t *testing.T) {
	tests := []struct {
		name    string
		typ     GameType
		inbound bool
		want    bool
	}{
		{name: "base game", typ: TypeBoardGame, inbound: false, want: false},
		{name: "labelled expansion", typ: TypeExpansion, inbound: false, want: true},
		{name: "inbound link on base label", typ: TypeBoardGame, inbound: true, want: true},
		{name: "both signals", typ: TypeExpansion, inbound: true, want: true},
		{name: "unknown type", typ: "", inbound: false, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpansion(tt.typ, tt.inbound); got != tt.want {
				t.Errorf("IsExpansion(%q, %v) = %v, want %v", tt.typ, tt.inbound, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	g := &GameMetadata{ID: "926", Type: TypeBoardGame, HasInboundExpansionLink: true}
	Classify(g)
	if !g.IsExpansion || g.Type != TypeExpansion {
		t.Errorf("Classify() = %v/%q, want expansion", g.IsExpansion, g.Type)
	}

	base := &GameMetadata{ID: "13"}
	Classify(base)
	if base.IsExpansion || base.Type != TypeBoardGame {
		t.Errorf("Classify() = %v/%q, want base game", base.IsExpansion, base.Type)
	}

	// nil must not panic
	Classify(nil)
}

func TestEnrichAndLighten(t *testing.T) {
	r := ToSearchResult(SearchItem{ID: "13", Name: "Catan", Type: TypeBoardGame}, 1)
	if r.HasMetadata {
		t.Fatal("bare result must not claim metadata")
	}

	g := &GameMetadata{ID: "13", Thumbnail: "t.jpg", AverageRating: 7.1, Rank: 500, YearPublished: 1995}
	Classify(g)
	enriched := Enrich(r, g)
	if !enriched.HasMetadata || enriched.Thumbnail != "t.jpg" || enriched.Rank != 500 {
		t.Errorf("Enrich() = %+v", enriched)
	}
	if enriched.YearPublished != 1995 {
		t.Errorf("YearPublished = %d, want 1995 from metadata", enriched.YearPublished)
	}

	light := Lighten(enriched)
	if light.HasMetadata || light.Thumbnail != "" || light.AverageRating != 0 {
		t.Errorf("Lighten() kept enrichment fields: %+v", light)
	}
	if light.ID != "13" || light.Score != 1 {
		t.Errorf("Lighten() dropped identity fields: %+v", light)
	}
}
