package main

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/thekrainbow/deep2048/engine"
)

var ErrGameNotRunning = errors.New("game not running")

type GameController struct {
	mu              sync.Mutex
	game            Game
	engine          *engine.Engine
	replays         *replayStore
	log             zerolog.Logger
	searchEnabled   func() bool
	searchPublisher func(searchPayload)
}

func NewGameController(settings GameSettings, replays *replayStore, logger zerolog.Logger) *GameController {
	return &GameController{
		game:    NewGame(settings, logger),
		engine:  engine.New(engineConfig(GetConfig(), logger)),
		replays: replays,
		log:     logger,
	}
}

func (gc *GameController) SetSearchPublisher(enabled func() bool, publisher func(searchPayload)) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.searchEnabled = enabled
	gc.searchPublisher = publisher
}

func (gc *GameController) Tick() bool {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	var onRound func(engine.Round)
	if gc.searchPublisher != nil && (gc.searchEnabled == nil || gc.searchEnabled()) {
		board := gc.game.State().Board
		turn := gc.game.History().Total()
		publish := gc.searchPublisher
		onRound = func(r engine.Round) {
			publish(searchPayloadFromRound(board, turn, r))
		}
	}
	return gc.game.Tick(gc.engine, onRound)
}

func (gc *GameController) State() GameState {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.game.State()
}

func (gc *GameController) Settings() GameSettings {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.game.settings
}

func (gc *GameController) History() MoveHistory {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.game.History()
}

func (gc *GameController) CurrentTurnStartedAtMs() int64 {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.game.TurnStartedAtMs()
}

func (gc *GameController) LatestHistoryEntry() (HistoryEntry, bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.game.History().Last()
}

func (gc *GameController) StartGame(settings GameSettings) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.game.Stop("restarted")
	gc.game.Reset(settings)
	gc.game.Start(gc.replays)
}

func (gc *GameController) Stop(reason string) error {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.game.status != StatusRunning {
		return ErrGameNotRunning
	}
	gc.game.Stop(reason)
	return nil
}

func (gc *GameController) UpdateSettings(update GameSettings) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.game.settings = update
}

// ResetForConfigChange rebuilds the engine so new depth, worker and
// heuristic settings apply from the next turn on.
func (gc *GameController) ResetForConfigChange() {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.engine = engine.New(engineConfig(GetConfig(), gc.log))
	gc.game.history.SetLimit(GetConfig().HistoryLimit)
}

func (gc *GameController) Engine() *engine.Engine {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	return gc.engine
}

// Evaluate runs a one-off decision on an arbitrary board without touching
// the current game.
func (gc *GameController) Evaluate(b engine.Board, state engine.SearchState) engine.TurnResult {
	return gc.Engine().EvaluateTurn(b, state)
}
