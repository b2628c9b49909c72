package engine

import (
	"context"
	"errors"
	"testing"
)

func newFastEngine() *Engine {
	return New(Config{Policy: DepthPolicy{MinDepth: 1, MaxDepth: 1}, Workers: 2})
}

func playRecorded(t *testing.T, seed uint32, maxRank int) (GameResult, []TurnRecord) {
	t.Helper()
	var records []TurnRecord
	g := NewGame(seed)
	res, err := g.Play(context.Background(), newFastEngine(), maxRank, SinkFunc(func(rec TurnRecord) error {
		records = append(records, rec)
		return nil
	}))
	if err != nil {
		t.Fatalf("play failed: %v", err)
	}
	return res, records
}

func TestPlayIsDeterministic(t *testing.T) {
	first, firstRecords := playRecorded(t, 7, 0)
	second, secondRecords := playRecorded(t, 7, 0)
	if first.Board != second.Board || first.Score != second.Score || first.Turns != second.Turns {
		t.Fatalf("expected identical games, got %+v and %+v", first, second)
	}
	if len(firstRecords) != len(secondRecords) {
		t.Fatalf("expected identical record counts, got %d and %d", len(firstRecords), len(secondRecords))
	}
	for i := range firstRecords {
		if firstRecords[i] != secondRecords[i] {
			t.Fatalf("record %d differs: %+v vs %+v", i, firstRecords[i], secondRecords[i])
		}
	}
}

func TestPlayRecordsFinalTurn(t *testing.T) {
	res, records := playRecorded(t, 7, 0)
	if len(records) != res.Turns+1 {
		t.Fatalf("expected %d records, got %d", res.Turns+1, len(records))
	}
	last := records[len(records)-1]
	if last.Direction != int8(DirNone) || last.EndProb != 1 || last.Board != res.Board {
		t.Fatalf("expected final record without move on the final board, got %+v", last)
	}
	if res.Board.HasMove() {
		t.Fatalf("expected the game to end without legal moves")
	}
	if res.Score != GameScore(res.Board, res.Rank2Count) || res.Reached {
		t.Fatalf("unexpected result %+v", res)
	}
	for i, rec := range records[:len(records)-1] {
		next := ApplyMove(rec.Board, Direction(rec.Direction))
		if next == rec.Board {
			t.Fatalf("record %d holds an illegal move", i)
		}
		if records[i+1].Board.EmptyCount() != next.EmptyCount()-1 {
			t.Fatalf("record %d: expected exactly one spawned tile", i)
		}
	}
}

func TestPlayStopsAtMaxRank(t *testing.T) {
	res, records := playRecorded(t, 11, 6)
	if !res.Reached || res.MaxRank < 6 {
		t.Fatalf("expected to reach rank 6, got %+v", res)
	}
	last := records[len(records)-1]
	if last.Board != res.Board || last.Board.MaxRank() < 6 {
		t.Fatalf("expected the game to stop on the recorded board")
	}
	for _, rec := range records[:len(records)-1] {
		if rec.Board.MaxRank() >= 6 {
			t.Fatalf("expected earlier boards below rank 6")
		}
	}
}

func TestPlayHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGame(3)
	opening := g.Board()
	res, err := g.Play(ctx, newFastEngine(), 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Turns != 0 || res.Board != opening {
		t.Fatalf("expected no turns played, got %+v", res)
	}
}

func TestPlayStopsOnSinkError(t *testing.T) {
	boom := errors.New("disk full")
	g := NewGame(3)
	_, err := g.Play(context.Background(), newFastEngine(), 0, SinkFunc(func(TurnRecord) error {
		return boom
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestStepAdvancesGame(t *testing.T) {
	g := NewGame(5)
	before := g.Board()
	res, moved := g.Step(newFastEngine())
	if !moved || res.Direction == DirNone {
		t.Fatalf("expected a move on the opening board")
	}
	if g.Turns() != 1 || g.Board() == before {
		t.Fatalf("expected board to advance")
	}
	if g.Board().EmptyCount() != before.Slide(res.Direction).EmptyCount()-1 {
		t.Fatalf("expected one tile to spawn after the move")
	}
}
