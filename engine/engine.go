package engine

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Policy          DepthPolicy
	Workers         int
	CacheMaxEntries int
	ProbCutoff      float64
	Heuristic       *HeuristicTable
	LogSearchStats  bool
	Logger          zerolog.Logger
}

func DefaultConfig() Config {
	return Config{
		Policy:     DefaultDepthPolicy(),
		ProbCutoff: DefaultProbCutoff,
		Logger:     zerolog.Nop(),
	}
}

// Round describes one completed depth of a turn.
type Round struct {
	Round     int           `json:"round"`
	Depth     int           `json:"depth"`
	State     SearchState   `json:"state"`
	Direction Direction     `json:"direction"`
	Score     float64       `json:"score"`
	EndProb   float64       `json:"end_prob"`
	Elapsed   time.Duration `json:"elapsed"`
}

type TurnResult struct {
	Direction Direction       `json:"direction"`
	Score     float64         `json:"score"`
	EndProb   float64         `json:"end_prob"`
	Depth     int             `json:"depth"`
	Rounds    int             `json:"rounds"`
	State     SearchState     `json:"state"`
	Stats     SearchStats     `json:"stats"`
	Elapsed   time.Duration   `json:"elapsed"`
	RoundLog  []time.Duration `json:"round_times"`
}

// Engine decides one move at a time. It is safe for concurrent use; the
// dispatcher pool bounds the total search parallelism.
type Engine struct {
	policy     DepthPolicy
	dispatcher *Dispatcher
	logStats   bool
	log        zerolog.Logger
}

func New(cfg Config) *Engine {
	policy := cfg.Policy
	if policy.MinDepth <= 0 {
		policy.MinDepth = DefaultMinDepth
	}
	if policy.MaxDepth < policy.MinDepth {
		policy.MaxDepth = max(policy.MinDepth, DefaultMaxDepth)
	}
	return &Engine{
		policy: policy,
		dispatcher: NewDispatcher(DispatcherConfig{
			Workers:         cfg.Workers,
			CacheMaxEntries: cfg.CacheMaxEntries,
			ProbCutoff:      cfg.ProbCutoff,
			Heuristic:       cfg.Heuristic,
		}),
		logStats: cfg.LogSearchStats,
		log:      cfg.Logger,
	}
}

func (e *Engine) Policy() DepthPolicy {
	return e.policy
}

func (e *Engine) Workers() int {
	return e.dispatcher.Workers()
}

func (e *Engine) EvaluateTurn(b Board, state SearchState) TurnResult {
	return e.EvaluateTurnObserved(b, state, nil)
}

// EvaluateTurnObserved re-searches b at increasing depth until the depth
// asked for by the current state has been searched. onRound, when set, is
// called after every round from the calling goroutine.
func (e *Engine) EvaluateTurnObserved(b Board, state SearchState, onRound func(Round)) TurnResult {
	start := time.Now()
	res := TurnResult{Direction: DirNone, EndProb: 1, State: state}
	searched := 0
	for {
		target := e.policy.TargetDepth(state, b)
		if target <= searched {
			break
		}
		roundStart := time.Now()
		root := e.dispatcher.Dispatch(b, target)
		res.Direction = root.Direction
		res.Score = root.Score
		res.EndProb = root.EndProb
		res.Stats.Add(root.Stats)
		searched = target
		res.Rounds++
		state = NextState(root.EndProb)
		elapsed := time.Since(roundStart)
		res.RoundLog = append(res.RoundLog, elapsed)
		if onRound != nil {
			onRound(Round{
				Round:     res.Rounds,
				Depth:     target,
				State:     state,
				Direction: root.Direction,
				Score:     root.Score,
				EndProb:   root.EndProb,
				Elapsed:   elapsed,
			})
		}
		if root.Direction == DirNone {
			break
		}
	}
	res.Depth = searched
	res.State = state
	res.Elapsed = time.Since(start)
	if e.logStats {
		e.logSearchStats("turn", res)
	}
	return res
}

func (e *Engine) logSearchStats(tag string, res TurnResult) {
	nps := 0.0
	if res.Elapsed > 0 {
		nps = float64(res.Stats.Nodes) / res.Elapsed.Seconds()
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	rounds := zerolog.Arr()
	for _, d := range res.RoundLog {
		rounds.Int64(d.Milliseconds())
	}
	e.log.Info().
		Str("tag", tag).
		Int64("t_ms", res.Elapsed.Milliseconds()).
		Int("depth", res.Depth).
		Int("rounds", res.Rounds).
		Str("dir", res.Direction.String()).
		Str("state", res.State.String()).
		Float64("end_prob", res.EndProb).
		Uint64("nodes", res.Stats.Nodes).
		Float64("nps", nps).
		Uint64("chance", res.Stats.ChanceNodes).
		Uint64("player", res.Stats.PlayerNodes).
		Uint64("horizon", res.Stats.Horizon).
		Uint64("cache_probe", res.Stats.CacheProbes).
		Uint64("cache_hit", res.Stats.CacheHits).
		Float64("cache_hit_rate", res.Stats.HitRate()*100).
		Uint64("cache_store", res.Stats.CacheStores).
		Str("mem_heap", formatBytes(mem.HeapAlloc)).
		Str("mem_sys", formatBytes(mem.Sys)).
		Array("round_ms", rounds).
		Msg("search stats")
}
