package main

import (
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/thekrainbow/deep2048/engine"
)

// The value function is a sum over 17 n-tuples of 16 bits each: the 4 rows,
// the 4 columns and the 9 2x2 squares of the board.
const numTables = 17

const DefaultExploreSeed uint32 = 0x17014711

type valueTables [numTables][1 << 16]float32

type tuplePos [numTables]uint16

func tuplePositions(b engine.Board) tuplePos {
	var pos tuplePos
	t := b.Transpose()
	for i := 0; i < 4; i++ {
		pos[i] = b.Row(i)
		pos[i+4] = t.Row(i)
	}
	lo, hi := uint64(b), uint64(b)>>8
	n := 8
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			pos[n] = uint16(lo&0xff | hi&0xff00)
			n++
			lo >>= 4
			hi >>= 4
		}
		lo >>= 4
		hi >>= 4
	}
	return pos
}

type learnerConfig struct {
	AlphaStart    float64 `json:"alpha_start"`
	AlphaDecrease float64 `json:"alpha_decrease"`
	AlphaRate     float64 `json:"alpha_rate"`
	ExploreFactor float64 `json:"explore_factor"`
	BestSymmetry  bool    `json:"best_symmetry"`
	TileSeed      uint32  `json:"tile_seed"`
	ExploreSeed   uint32  `json:"explore_seed"`
	AvgWindow     int     `json:"avg_window"`
}

func defaultLearnerConfig() learnerConfig {
	return learnerConfig{
		AlphaStart:    0.0025,
		AlphaDecrease: 5,
		AlphaRate:     300000,
		ExploreFactor: 1,
		TileSeed:      engine.DefaultSpawnSeed,
		ExploreSeed:   DefaultExploreSeed,
		AvgWindow:     1000,
	}
}

type gameOutcome struct {
	Score   int `json:"score"`
	MaxRank int `json:"max_rank"`
	Moves   int `json:"moves"`
}

// learner plays games against itself and updates its tables by TD(0). It is
// not safe for concurrent use.
type learner struct {
	cfg     learnerConfig
	tables  *valueTables
	tiles   *engine.Spawner
	explore *engine.Spawner
	games   int
	scores  *movingAvg[float64]
	best    int
}

func newLearner(cfg learnerConfig) *learner {
	return &learner{
		cfg:     cfg,
		tables:  new(valueTables),
		tiles:   engine.NewSpawner(cfg.TileSeed),
		explore: engine.NewSpawner(cfg.ExploreSeed),
		scores:  newMovingAvg[float64](cfg.AvgWindow),
	}
}

func (l *learner) valueAt(pos tuplePos) float32 {
	var sum float32
	for i, p := range pos {
		sum += l.tables[i][p]
	}
	return sum
}

// value returns the tuple positions used for b and their summed value. With
// best-symmetry lookup the most valuable image of b is used.
func (l *learner) value(b engine.Board) (tuplePos, float32) {
	if !l.cfg.BestSymmetry {
		pos := tuplePositions(b)
		return pos, l.valueAt(pos)
	}
	var bestPos tuplePos
	bestVal := float32(math.Inf(-1))
	for img := range b.Symmetries() {
		pos := tuplePositions(img)
		if v := l.valueAt(pos); v > bestVal {
			bestVal, bestPos = v, pos
		}
	}
	return bestPos, bestVal
}

func (l *learner) adjust(pos tuplePos, delta float32) {
	for i, p := range pos {
		l.tables[i][p] += delta
	}
}

// alpha decays geometrically with the number of games played.
func (l *learner) alpha() float32 {
	return float32(l.cfg.AlphaStart / math.Pow(l.cfg.AlphaDecrease, float64(l.games)/l.cfg.AlphaRate))
}

func (l *learner) spawn(b engine.Board, rank2 *int) engine.Board {
	next, four := l.tiles.PlaceRandomTile(b)
	if four {
		*rank2++
	}
	return next
}

// PlayGame plays one self-play game. A random legal move is taken with
// probability 1/(games*ExploreFactor); exploratory moves are not learned
// from.
func (l *learner) PlayGame() gameOutcome {
	alpha := l.alpha()
	l.games++
	explore := max(1, int(float64(l.games)*l.cfg.ExploreFactor))

	rank2 := 0
	board := l.spawn(0, &rank2)
	prevPos, prevVal := l.value(board)
	moves := 0
	for {
		board = l.spawn(board, &rank2)

		bestDir := engine.DirNone
		var bestBoard engine.Board
		var bestPos tuplePos
		bestVal := float32(math.Inf(-1))

		random := l.explore.Intn(explore) == 0
		if random {
			var legal []engine.Direction
			for _, dir := range engine.Directions {
				if board.Slide(dir) != board {
					legal = append(legal, dir)
				}
			}
			if len(legal) > 0 {
				bestDir = legal[l.explore.Intn(len(legal))]
				bestBoard = board.Slide(bestDir)
				bestPos, bestVal = l.value(bestBoard)
			}
		} else {
			for _, dir := range engine.Directions {
				next := board.Slide(dir)
				if next == board {
					continue
				}
				pos, val := l.value(next)
				if val > bestVal {
					bestDir, bestBoard, bestPos, bestVal = dir, next, pos, val
				}
			}
		}

		if !random {
			// Every move earns a reward of 1, a lost board is worth 0.
			var target float32
			if bestDir != engine.DirNone {
				target = 1 + bestVal
			}
			l.adjust(prevPos, (target-prevVal)*alpha)
		}

		if bestDir == engine.DirNone {
			break
		}
		prevPos, prevVal = bestPos, bestVal
		board = bestBoard
		moves++
	}

	out := gameOutcome{
		Score:   engine.GameScore(board, rank2),
		MaxRank: board.MaxRank(),
		Moves:   moves,
	}
	l.scores.Add(float64(out.Score))
	l.best = max(l.best, out.Score)
	return out
}

func (l *learner) Games() int {
	return l.games
}

func (l *learner) AvgScore() float64 {
	return l.scores.Avg()
}

type snapshot struct {
	Config learnerConfig
	Games  int
	Best   int
	Tables *valueTables
}

// Save writes the tables with gob, through a temp file renamed into place.
func (l *learner) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(snapshot{Config: l.cfg, Games: l.games, Best: l.best, Tables: l.tables}); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

var errNoSnapshot = errors.New("no snapshot")

// Load restores tables and the game counter from path. The random streams
// are not part of a snapshot and restart from their seeds.
func (l *learner) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errNoSnapshot
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Tables == nil {
		return fmt.Errorf("decode snapshot: missing tables")
	}
	l.tables = snap.Tables
	l.games = snap.Games
	l.best = snap.Best
	return nil
}
