package engine

import (
	"testing"
)

const deadBoard = Board(0x1234_5678_9abc_def1)

// riskyBoard has one empty cell; sliding right loses for sure one ply later.
const riskyBoard = Board(0x3201_4564_1232_2151)

func newTestSearcher() *searcher {
	s := &searcher{
		cache:      NewTranspositionCache(0),
		heur:       DefaultHeuristicTable(),
		probCutoff: DefaultProbCutoff,
	}
	s.cache.Begin(1)
	return s
}

func TestPlayerNodeWithoutMoveIsLost(t *testing.T) {
	if deadBoard.HasMove() {
		t.Fatalf("expected test board to have no move")
	}
	score, endProb := newTestSearcher().playerNode(deadBoard, 3, 1)
	if score != 0 || endProb != 1 {
		t.Fatalf("expected (0, 1), got (%v, %v)", score, endProb)
	}
}

func TestChanceNodeHorizon(t *testing.T) {
	s := newTestSearcher()
	b := Board(0x0000_0000_0021_0001)
	score, endProb := s.chanceNode(b, 0, 1)
	if score != DefaultHeuristicTable().Score(b) || endProb != 0 {
		t.Fatalf("expected static score at depth 0, got (%v, %v)", score, endProb)
	}
	score, _ = s.chanceNode(b, 3, DefaultProbCutoff/2)
	if score != DefaultHeuristicTable().Score(b) {
		t.Fatalf("expected static score below the probability cutoff")
	}
	if s.stats.Horizon != 2 || s.stats.CacheProbes != 0 {
		t.Fatalf("unexpected stats %+v", s.stats)
	}
}

func TestChanceNodeUsesCache(t *testing.T) {
	s := newTestSearcher()
	b := Board(0x0000_0000_0021_0001)
	first, firstEnd := s.chanceNode(b, 2, 1)
	nodes := s.stats.Nodes
	second, secondEnd := s.chanceNode(b, 1, 1)
	if s.stats.Nodes != nodes+1 {
		t.Fatalf("expected shallower probe to be answered from cache")
	}
	if first != second || firstEnd != secondEnd {
		t.Fatalf("expected cached values, got %v/%v and %v/%v", first, firstEnd, second, secondEnd)
	}
	if s.stats.CacheHits == 0 || s.stats.CacheStores == 0 {
		t.Fatalf("expected cache activity, got %+v", s.stats)
	}
}

func TestChanceNodeEndProbability(t *testing.T) {
	s := newTestSearcher()
	next := riskyBoard.Slide(Right)
	score, endProb := s.chanceNode(next, 1, 1)
	if score != 0 || endProb != 1 {
		t.Fatalf("expected certain loss after sliding right, got (%v, %v)", score, endProb)
	}
	_, endProb = s.chanceNode(riskyBoard.Slide(Up), 1, 1)
	if endProb <= 0 || endProb >= 1 {
		t.Fatalf("expected partial end probability, got %v", endProb)
	}
}

func TestSearchStatsAdd(t *testing.T) {
	var s SearchStats
	s.Add(SearchStats{Nodes: 3, CacheProbes: 4, CacheHits: 1})
	s.Add(SearchStats{Nodes: 2, CacheProbes: 4, CacheHits: 3})
	if s.Nodes != 5 || s.HitRate() != 0.5 {
		t.Fatalf("unexpected merged stats %+v", s)
	}
	if (SearchStats{}).HitRate() != 0 {
		t.Fatalf("expected zero hit rate without probes")
	}
}
