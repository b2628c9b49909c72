package main

import (
	"math"
	"time"

	"github.com/rs/zerolog"
	"lukechampine.com/frand"

	"github.com/thekrainbow/deep2048/engine"
	"github.com/thekrainbow/deep2048/replay"
)

type Game struct {
	settings    GameSettings
	play        *engine.Game
	status      GameStatus
	history     MoveHistory
	lastDir     engine.Direction
	lastEnd     float64
	lastMessage string
	replay      *replay.Writer
	replayName  string
	turnStart   time.Time
	log         zerolog.Logger
}

func NewGame(settings GameSettings, logger zerolog.Logger) Game {
	g := Game{log: logger}
	g.Reset(settings)
	return g
}

func randomSeed() uint32 {
	return uint32(frand.Uint64n(math.MaxUint32)) + 1
}

func (g *Game) Reset(settings GameSettings) {
	g.closeReplay()
	g.replayName = ""
	g.settings = settings
	seed := settings.Seed
	if seed == 0 {
		seed = randomSeed()
	}
	g.play = engine.NewGame(seed)
	g.status = StatusNotStarted
	g.history.Clear()
	g.history.SetLimit(GetConfig().HistoryLimit)
	g.lastDir = engine.DirNone
	g.lastEnd = 0
	g.lastMessage = ""
	g.turnStart = time.Now()
}

// Start begins play. When recording is on, a replay file is opened in store;
// failing to open it leaves the game unrecorded rather than refusing to play.
func (g *Game) Start(store *replayStore) {
	if g.status != StatusNotStarted {
		return
	}
	g.status = StatusRunning
	g.turnStart = time.Now()
	if g.settings.Record && store != nil {
		w, name, err := store.Create(g.play.Seed())
		if err != nil {
			g.log.Warn().Err(err).Msg("replay recording disabled for this game")
			g.lastMessage = "replay disabled: " + err.Error()
		} else {
			g.replay = w
			g.replayName = name
		}
	}
	g.log.Info().
		Uint32("seed", g.play.Seed()).
		Int("max_rank", g.settings.MaxRank).
		Str("replay", g.replayName).
		Msg("game started")
}

func (g *Game) Stop(reason string) {
	if g.status != StatusRunning {
		return
	}
	g.status = StatusStopped
	g.lastMessage = reason
	g.finish()
}

// Tick plays one turn when the game is running and reports whether it did.
func (g *Game) Tick(eng *engine.Engine, onRound func(engine.Round)) bool {
	if g.status != StatusRunning {
		return false
	}
	g.play.OnRound = onRound
	res, rec := g.play.Decide(eng)
	g.lastDir = res.Direction
	g.lastEnd = res.EndProb
	if g.replay != nil {
		if err := g.replay.RecordTurn(rec); err != nil {
			g.log.Error().Err(err).Msg("replay write failed, recording stopped")
			g.closeReplay()
		}
	}
	elapsed := time.Since(g.turnStart)
	g.history.Push(HistoryEntry{
		Turn:      g.history.Total(),
		Record:    rec,
		ElapsedMs: float64(elapsed.Microseconds()) / 1000,
		Stats:     res.Stats,
	})

	switch {
	case g.settings.MaxRank > 0 && g.play.Board().MaxRank() >= g.settings.MaxRank:
		g.status = StatusReached
		g.lastMessage = "target tile reached"
		g.finish()
	case res.Direction == engine.DirNone:
		g.status = StatusLost
		g.lastMessage = "no move left"
		g.finish()
	default:
		g.play.Apply(res.Direction)
	}
	g.turnStart = time.Now()
	return true
}

func (g *Game) finish() {
	g.closeReplay()
	g.log.Info().
		Str("status", g.status.String()).
		Int("turns", g.play.Turns()).
		Int("score", g.play.Score()).
		Int("max_tile", 1<<g.play.Board().MaxRank()).
		Msg("game over")
}

func (g *Game) closeReplay() {
	if g.replay == nil {
		return
	}
	if err := g.replay.Close(); err != nil {
		g.log.Error().Err(err).Str("replay", g.replayName).Msg("closing replay failed")
	}
	g.replay = nil
}

func (g *Game) State() GameState {
	return GameState{
		Board:         g.play.Board(),
		Status:        g.status,
		Seed:          g.play.Seed(),
		Rank2Count:    g.play.Rank2Count(),
		Turns:         g.play.Turns(),
		SearchState:   g.play.State(),
		LastDirection: g.lastDir,
		LastEndProb:   g.lastEnd,
		LastMessage:   g.lastMessage,
		ReplayName:    g.replayName,
	}
}

func (g *Game) History() MoveHistory {
	return g.history
}

func (g *Game) TurnStartedAtMs() int64 {
	if g.turnStart.IsZero() {
		return 0
	}
	return g.turnStart.UnixMilli()
}
