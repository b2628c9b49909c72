package engine

type SearchState int

const (
	ZeroProbDeath SearchState = iota
	LowProbDeath
	HighProbDeath
	VeryHighProbDeath
)

func (s SearchState) String() string {
	switch s {
	case ZeroProbDeath:
		return "zero"
	case LowProbDeath:
		return "low"
	case HighProbDeath:
		return "high"
	case VeryHighProbDeath:
		return "very_high"
	default:
		return "unknown"
	}
}

func (s SearchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// NextState classifies the end probability of the last decision.
func NextState(endProb float64) SearchState {
	switch {
	case endProb > 0.05:
		return VeryHighProbDeath
	case endProb > 0.001:
		return HighProbDeath
	case endProb > 0:
		return LowProbDeath
	default:
		return ZeroProbDeath
	}
}

const (
	DefaultMinDepth = 3
	DefaultMaxDepth = 17
)

type DepthPolicy struct {
	MinDepth int `json:"min_depth" yaml:"min_depth"`
	MaxDepth int `json:"max_depth" yaml:"max_depth"`
}

func DefaultDepthPolicy() DepthPolicy {
	return DepthPolicy{MinDepth: DefaultMinDepth, MaxDepth: DefaultMaxDepth}
}

// TargetDepth derives the search depth for b from the number of distinct
// ranks on it. Riskier states search deeper.
func (p DepthPolicy) TargetDepth(state SearchState, b Board) int {
	distinct := b.DistinctRanks()
	var depth int
	switch state {
	case ZeroProbDeath:
		depth = max(distinct, 4) - 4
	case LowProbDeath:
		depth = max(distinct, 2) - 2
	case HighProbDeath:
		depth = distinct
	default:
		depth = p.MaxDepth
	}
	return min(max(depth, p.MinDepth), p.MaxDepth)
}
