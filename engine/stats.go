package engine

import "fmt"

type SearchStats struct {
	Nodes       uint64 `json:"nodes"`
	ChanceNodes uint64 `json:"chance_nodes"`
	PlayerNodes uint64 `json:"player_nodes"`
	Horizon     uint64 `json:"horizon"`
	CacheProbes uint64 `json:"cache_probes"`
	CacheHits   uint64 `json:"cache_hits"`
	CacheStores uint64 `json:"cache_stores"`
}

func (s *SearchStats) Add(o SearchStats) {
	s.Nodes += o.Nodes
	s.ChanceNodes += o.ChanceNodes
	s.PlayerNodes += o.PlayerNodes
	s.Horizon += o.Horizon
	s.CacheProbes += o.CacheProbes
	s.CacheHits += o.CacheHits
	s.CacheStores += o.CacheStores
}

func (s SearchStats) HitRate() float64 {
	if s.CacheProbes == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.CacheProbes)
}

func formatBytes(n uint64) string {
	const (
		kb = 1 << (10 * 1)
		mb = 1 << (10 * 2)
		gb = 1 << (10 * 3)
	)
	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(gb))
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(mb))
	case n >= kb:
		return fmt.Sprintf("%.2f kB", float64(n)/float64(kb))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
