package main

import "github.com/thekrainbow/deep2048/engine"

type GameStatus int

const (
	StatusNotStarted GameStatus = iota
	StatusRunning
	StatusStopped
	StatusReached
	StatusLost
)

func (s GameStatus) String() string {
	switch s {
	case StatusNotStarted:
		return "not_started"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusReached:
		return "reached"
	case StatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

func (s GameStatus) Finished() bool {
	return s == StatusReached || s == StatusLost
}

// GameState is a point-in-time copy of a game, safe to hand out of the
// controller lock.
type GameState struct {
	Board         engine.Board
	Status        GameStatus
	Seed          uint32
	Rank2Count    int
	Turns         int
	SearchState   engine.SearchState
	LastDirection engine.Direction
	LastEndProb   float64
	LastMessage   string
	ReplayName    string
}

func (s GameState) Score() int {
	return engine.GameScore(s.Board, s.Rank2Count)
}
