package engine

import (
	"context"
	"time"
)

// TurnRecord is the decision taken on one board, before the move is made.
type TurnRecord struct {
	Board      Board   `json:"board"`
	Rank2Count int32   `json:"rank2_count"`
	Score      float32 `json:"score"`
	EndProb    float32 `json:"end_prob"`
	Direction  int8    `json:"direction"`
	Depth      uint8   `json:"depth"`
	Rounds     uint8   `json:"rounds"`
}

type TurnSink interface {
	RecordTurn(TurnRecord) error
}

type SinkFunc func(TurnRecord) error

func (f SinkFunc) RecordTurn(rec TurnRecord) error {
	return f(rec)
}

type GameResult struct {
	Seed       uint32        `json:"seed"`
	Board      Board         `json:"board"`
	Rank2Count int           `json:"rank2_count"`
	Score      int           `json:"score"`
	MaxRank    int           `json:"max_rank"`
	Turns      int           `json:"turns"`
	Reached    bool          `json:"reached"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Game owns the board, the tile stream and the search state of one game.
// It is not safe for concurrent use.
type Game struct {
	seed       uint32
	board      Board
	rank2Count int
	spawner    *Spawner
	state      SearchState
	turns      int
	done       bool

	OnRound func(Round)
}

func NewGame(seed uint32) *Game {
	g := &Game{spawner: NewSpawner(seed)}
	g.seed = g.spawner.Seed()
	g.spawn()
	g.spawn()
	return g
}

func (g *Game) spawn() {
	next, rank2 := g.spawner.PlaceRandomTile(g.board)
	g.board = next
	if rank2 {
		g.rank2Count++
	}
}

func (g *Game) Seed() uint32 {
	return g.seed
}

func (g *Game) Board() Board {
	return g.board
}

func (g *Game) Rank2Count() int {
	return g.rank2Count
}

func (g *Game) State() SearchState {
	return g.state
}

func (g *Game) Turns() int {
	return g.turns
}

func (g *Game) Done() bool {
	return g.done
}

func (g *Game) Score() int {
	return GameScore(g.board, g.rank2Count)
}

// Decide searches the current board and records the decision without
// moving. The search state carries over to the next decision.
func (g *Game) Decide(e *Engine) (TurnResult, TurnRecord) {
	res := e.EvaluateTurnObserved(g.board, g.state, g.OnRound)
	g.state = res.State
	rec := TurnRecord{
		Board:      g.board,
		Rank2Count: int32(g.rank2Count),
		Score:      float32(res.Score),
		EndProb:    float32(res.EndProb),
		Direction:  int8(res.Direction),
		Depth:      uint8(res.Depth),
		Rounds:     uint8(res.Rounds),
	}
	return res, rec
}

// Apply slides the board and spawns the next tile.
func (g *Game) Apply(dir Direction) {
	next := g.board.Slide(dir)
	if next == g.board {
		panic("engine: illegal move " + dir.String())
	}
	g.board = next
	g.turns++
	g.spawn()
}

// Step plays one turn. It reports false once the board has no legal move.
func (g *Game) Step(e *Engine) (TurnResult, bool) {
	res, _ := g.Decide(e)
	if res.Direction == DirNone {
		g.done = true
		return res, false
	}
	g.Apply(res.Direction)
	return res, true
}

// Play runs the game until no move is left or a tile of maxRank appears
// (maxRank <= 0 plays to the end). Every decision, including the final one,
// goes to sink. ctx is checked between turns only.
func (g *Game) Play(ctx context.Context, e *Engine, maxRank int, sink TurnSink) (GameResult, error) {
	start := time.Now()
	reached := false
	for !g.done {
		if err := ctx.Err(); err != nil {
			return g.result(start, reached), err
		}
		res, rec := g.Decide(e)
		if sink != nil {
			if err := sink.RecordTurn(rec); err != nil {
				return g.result(start, reached), err
			}
		}
		if maxRank > 0 && g.board.MaxRank() >= maxRank {
			reached = true
			break
		}
		if res.Direction == DirNone {
			g.done = true
			break
		}
		g.Apply(res.Direction)
	}
	return g.result(start, reached), nil
}

func (g *Game) result(start time.Time, reached bool) GameResult {
	return GameResult{
		Seed:       g.seed,
		Board:      g.board,
		Rank2Count: g.rank2Count,
		Score:      g.Score(),
		MaxRank:    g.board.MaxRank(),
		Turns:      g.turns,
		Reached:    reached,
		Elapsed:    time.Since(start),
	}
}
