package engine

import (
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

type DispatcherConfig struct {
	Workers         int
	CacheMaxEntries int
	ProbCutoff      float64
	Heuristic       *HeuristicTable
}

// Dispatcher runs the root of a search: one unit of work per legal slide,
// spread over a fixed pool of workers that each own a TranspositionCache.
type Dispatcher struct {
	workers    chan *searcher
	size       int
	generation atomic.Uint64
}

type DirectionResult struct {
	Direction Direction `json:"direction"`
	Legal     bool      `json:"legal"`
	Score     float64   `json:"score"`
	EndProb   float64   `json:"end_prob"`
}

type RootResult struct {
	Direction  Direction          `json:"direction"`
	Score      float64            `json:"score"`
	EndProb    float64            `json:"end_prob"`
	Depth      int                `json:"depth"`
	Directions [4]DirectionResult `json:"directions"`
	Stats      SearchStats        `json:"stats"`
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	size := cfg.Workers
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	heur := cfg.Heuristic
	if heur == nil {
		heur = DefaultHeuristicTable()
	}
	cutoff := cfg.ProbCutoff
	if cutoff <= 0 {
		cutoff = DefaultProbCutoff
	}
	d := &Dispatcher{
		workers: make(chan *searcher, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		d.workers <- &searcher{
			cache:      NewTranspositionCache(cfg.CacheMaxEntries),
			heur:       heur,
			probCutoff: cutoff,
		}
	}
	return d
}

func (d *Dispatcher) Workers() int {
	return d.size
}

func (d *Dispatcher) nextGeneration() uint64 {
	gen := d.generation.Add(1)
	if gen == 0 {
		d.generation.CompareAndSwap(0, 1)
		gen = d.generation.Add(1)
	}
	return gen
}

// Dispatch searches every legal slide of b to depth and blocks until all
// of them are done. Direction is DirNone when b has no legal slide.
func (d *Dispatcher) Dispatch(b Board, depth int) RootResult {
	res := RootResult{Direction: DirNone, EndProb: 1, Depth: depth}
	var stats [4]SearchStats

	var g errgroup.Group
	g.SetLimit(d.size)
	for i, dir := range Directions {
		res.Directions[i].Direction = dir
		next := b.Slide(dir)
		if next == b {
			continue
		}
		res.Directions[i].Legal = true
		g.Go(func() error {
			w := <-d.workers
			defer func() { d.workers <- w }()
			w.cache.Begin(d.nextGeneration())
			w.stats = SearchStats{}
			score, endProb := w.chanceNode(next, depth, 1.0)
			res.Directions[i].Score = score
			res.Directions[i].EndProb = endProb
			stats[i] = w.stats
			return nil
		})
	}
	_ = g.Wait()

	best := math.Inf(-1)
	for i, dr := range res.Directions {
		res.Stats.Add(stats[i])
		if !dr.Legal {
			continue
		}
		if dr.Score > best {
			best = dr.Score
			res.Direction = dr.Direction
			res.Score = dr.Score
			res.EndProb = dr.EndProb
		}
	}
	return res
}
