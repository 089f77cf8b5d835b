package cache

import "time"

// NamespaceStats is a snapshot of one namespace's counters.
type NamespaceStats struct {
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Evictions   uint64        `json:"evictions"`
	Expirations uint64        `json:"expirations"`
	Entries     int           `json:"entries"`
	TTL         time.Duration `json:"-"`
}

// Lookups returns hits plus misses.
func (s NamespaceStats) Lookups() uint64 {
	return s.Hits + s.Misses
}

// HitRate returns hits / lookups, or 0 when nothing was looked up.
func (s NamespaceStats) HitRate() float64 {
	return hitRate(s.Hits, s.Misses)
}

// Statistics is a snapshot of both namespaces.
type Statistics struct {
	Metadata NamespaceStats `json:"metadata"`
	Search   NamespaceStats `json:"search"`
}

// Efficiency holds hit rates derived from Statistics.
type Efficiency struct {
	MetadataHitRate float64 `json:"metadataHitRate"`
	SearchHitRate   float64 `json:"searchHitRate"`
	OverallHitRate  float64 `json:"overallHitRate"`
}

// Efficiency derives hit rates from the snapshot.
func (s Statistics) Efficiency() Efficiency {
	return Efficiency{
		MetadataHitRate: s.Metadata.HitRate(),
		SearchHitRate:   s.Search.HitRate(),
		OverallHitRate: hitRate(
			s.Metadata.Hits+s.Search.Hits,
			s.Metadata.Misses+s.Search.Misses,
		),
	}
}

func hitRate(hits, misses uint64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
