package engine

const (
	DefaultProbCutoff = 0.0001

	spawnRank1Weight = 0.9
	spawnRank2Weight = 0.1
)

type searcher struct {
	cache      *TranspositionCache
	heur       *HeuristicTable
	probCutoff float64
	stats      SearchStats
}

// chanceNode averages over every empty cell receiving a rank-1 or rank-2
// tile. prob is the likelihood of reaching b; subtrees below probCutoff are
// scored statically.
func (s *searcher) chanceNode(b Board, depth int, prob float64) (float64, float64) {
	s.stats.Nodes++
	if depth <= 0 || prob < s.probCutoff {
		s.stats.Horizon++
		return s.heur.Score(b), 0
	}

	s.stats.CacheProbes++
	if score, endProb, ok := s.cache.Probe(b, depth); ok {
		s.stats.CacheHits++
		return score, endProb
	}

	s.stats.ChanceNodes++
	empty := b.EmptyCount()
	if empty == 0 {
		// Only reachable for the empty board, which has all 16 cells free.
		empty = 16
	}
	prob1 := prob / float64(empty) * spawnRank1Weight
	prob2 := prob / float64(empty) * spawnRank2Weight

	score, endProb := 0.0, 0.0
	for pos := 0; pos < 16; pos++ {
		if b.Tile(pos) != 0 {
			continue
		}
		s1, e1 := s.playerNode(b.SetTile(pos, 1), depth, prob1)
		s2, e2 := s.playerNode(b.SetTile(pos, 2), depth, prob2)
		score += s1*spawnRank1Weight + s2*spawnRank2Weight
		endProb += e1*spawnRank1Weight + e2*spawnRank2Weight
	}
	score /= float64(empty)
	endProb /= float64(empty)

	s.cache.Store(b, depth, score, endProb)
	s.stats.CacheStores++
	return score, endProb
}

// playerNode picks the slide with the strictly greatest expected score. A
// board without legal slides is lost: score 0, end probability 1.
func (s *searcher) playerNode(b Board, depth int, prob float64) (float64, float64) {
	s.stats.Nodes++
	s.stats.PlayerNodes++
	best, bestEnd := 0.0, 1.0
	found := false
	for _, dir := range Directions {
		next := b.Slide(dir)
		if next == b {
			continue
		}
		score, endProb := s.chanceNode(next, depth-1, prob)
		if !found || score > best {
			best, bestEnd = score, endProb
			found = true
		}
	}
	return best, bestEnd
}
