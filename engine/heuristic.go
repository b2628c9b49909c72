package engine

import (
	"math"
	"sync"
)

type HeuristicWeights struct {
	LostPenalty        float64 `json:"lost_penalty" yaml:"lost_penalty"`
	MonotonicityPower  float64 `json:"monotonicity_power" yaml:"monotonicity_power"`
	MonotonicityWeight float64 `json:"monotonicity_weight" yaml:"monotonicity_weight"`
	SumPower           float64 `json:"sum_power" yaml:"sum_power"`
	SumWeight          float64 `json:"sum_weight" yaml:"sum_weight"`
	MergesWeight       float64 `json:"merges_weight" yaml:"merges_weight"`
	EmptyWeight        float64 `json:"empty_weight" yaml:"empty_weight"`
}

func DefaultHeuristicWeights() HeuristicWeights {
	return HeuristicWeights{
		LostPenalty:        200000,
		MonotonicityPower:  4,
		MonotonicityWeight: 47,
		SumPower:           3.5,
		SumWeight:          11,
		MergesWeight:       700,
		EmptyWeight:        270,
	}
}

// HeuristicTable maps every 16-bit row to its static score. Read-only after
// construction and safe to share between workers.
type HeuristicTable struct {
	weights HeuristicWeights
	rows    [1 << 16]float64
}

var (
	defaultHeuristicOnce  sync.Once
	defaultHeuristicTable *HeuristicTable
)

func DefaultHeuristicTable() *HeuristicTable {
	defaultHeuristicOnce.Do(func() {
		defaultHeuristicTable = NewHeuristicTable(DefaultHeuristicWeights())
	})
	return defaultHeuristicTable
}

func NewHeuristicTable(w HeuristicWeights) *HeuristicTable {
	h := &HeuristicTable{weights: w}
	for n := 0; n < 1<<16; n++ {
		h.rows[n] = scoreRow(uint16(n), w)
	}
	return h
}

func scoreRow(row uint16, w HeuristicWeights) float64 {
	var vals [4]int
	for i := range vals {
		vals[i] = int(row>>(i*4)) & 0xf
	}

	sum := 0.0
	empty := 0
	merges := 0
	run := 0
	prev := 0
	for _, rank := range vals {
		sum += math.Pow(float64(rank), w.SumPower)
		if rank == 0 {
			empty++
			continue
		}
		if prev == rank {
			run++
		} else if run > 0 {
			merges += 1 + run
			run = 0
		}
		prev = rank
	}
	if run > 0 {
		merges += 1 + run
	}

	monoLeft, monoRight := 0.0, 0.0
	for i := 1; i < 4; i++ {
		a := math.Pow(float64(vals[i-1]), w.MonotonicityPower)
		b := math.Pow(float64(vals[i]), w.MonotonicityPower)
		if vals[i-1] > vals[i] {
			monoLeft += a - b
		} else {
			monoRight += b - a
		}
	}

	return w.LostPenalty +
		w.EmptyWeight*float64(empty) +
		w.MergesWeight*float64(merges) -
		w.MonotonicityWeight*math.Min(monoLeft, monoRight) -
		w.SumWeight*sum
}

func (h *HeuristicTable) Weights() HeuristicWeights {
	return h.weights
}

func (h *HeuristicTable) Row(row uint16) float64 {
	return h.rows[row]
}

// Score sums the row scores of b and of its transpose.
func (h *HeuristicTable) Score(b Board) float64 {
	x := uint64(b)
	t := uint64(b.Transpose())
	return h.rows[x&rowMask] +
		h.rows[(x>>16)&rowMask] +
		h.rows[(x>>32)&rowMask] +
		h.rows[(x>>48)&rowMask] +
		h.rows[t&rowMask] +
		h.rows[(t>>16)&rowMask] +
		h.rows[(t>>32)&rowMask] +
		h.rows[(t>>48)&rowMask]
}
