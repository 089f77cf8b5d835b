package cache

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tabletop-exchange/bgg-proxy/pkg/bgg"
)

// SearchOptions are the filters a search result set was resolved with.
type SearchOptions struct {
	// Type is the upstream type filter (empty means boardgame)
	Type bgg.GameType

	// Exact requests exact name matching upstream
	Exact bool

	// Light marks the light search variant, which is stored separately
	// because it carries no enrichment
	Light bool
}

// values returns the filter options as name/value pairs.
func (o SearchOptions) values() map[string]string {
	t := o.Type
	if t == "" {
		t = bgg.TypeBoardGame
	}
	return map[string]string{
		"type":  string(t),
		"exact": strconv.FormatBool(o.Exact),
	}
}

// NormalizeQuery lower-cases and trims a search query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// SearchKey generates a deterministic cache key for a search.
// Format: search:variant:query:opt1=val1:opt2=val2
//
// Example:
//   search:full:catan:exact=false:type=boardgame
func SearchKey(query string, opts SearchOptions) string {
	variant := "full"
	if opts.Light {
		variant = "light"
	}
	parts := []string{"search", variant, NormalizeQuery(query)}

	// Add options (sorted for determinism)
	values := opts.values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, values[name]))
	}

	return strings.Join(parts, ":")
}
