package replay

import (
	"github.com/samber/lo"

	"github.com/thekrainbow/deep2048/engine"
)

type Summary struct {
	Moves          int     `json:"moves"`
	RedoneSearches int     `json:"redone_searches"`
	DeathProbSum   float64 `json:"death_prob_sum"`
	DeathProb      float64 `json:"death_prob"`
	FinalScore     int     `json:"final_score"`
	MaxRank        int     `json:"max_rank"`
	Finished       bool    `json:"finished"`
}

// Summarize aggregates a game log. Records with end probability exactly 1
// are terminal and do not count toward the death probability.
func Summarize(records []engine.TurnRecord) Summary {
	s := Summary{Moves: len(records)}
	if len(records) == 0 {
		return s
	}
	s.RedoneSearches = lo.SumBy(records, func(r engine.TurnRecord) int {
		return max(int(r.Rounds)-1, 0)
	})
	risky := lo.Filter(records, func(r engine.TurnRecord, _ int) bool {
		return r.EndProb != 1
	})
	s.DeathProbSum = lo.SumBy(risky, func(r engine.TurnRecord) float64 {
		return float64(r.EndProb)
	})
	survive := lo.Reduce(risky, func(acc float64, r engine.TurnRecord, _ int) float64 {
		return acc * (1 - float64(r.EndProb))
	}, 1.0)
	s.DeathProb = 1 - survive

	last := records[len(records)-1]
	s.FinalScore = engine.GameScore(last.Board, int(last.Rank2Count))
	s.MaxRank = lo.MaxBy(records, func(a, b engine.TurnRecord) bool {
		return a.Board.MaxRank() > b.Board.MaxRank()
	}).Board.MaxRank()
	s.Finished = last.Direction == int8(engine.DirNone)
	return s
}
