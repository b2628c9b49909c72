package engine

import "testing"

func TestSpawnerSequence(t *testing.T) {
	s := NewSpawner(0)
	want := []int{52, 89, 54, 26, 36}
	for i, w := range want {
		if got := s.Intn(100); got != w {
			t.Fatalf("draw %d: expected %d, got %d", i, w, got)
		}
	}
	if NewSpawner(0).Seed() != DefaultSpawnSeed {
		t.Fatalf("expected seed 0 to map to the default seed")
	}
}

func TestPlaceRandomTileOnEmptyBoardCoversAllCells(t *testing.T) {
	s := NewSpawner(0)
	seen := make(map[int]bool)
	rank2 := 0
	for i := 0; i < 500; i++ {
		b, four := s.PlaceRandomTile(0)
		for pos := 0; pos < 16; pos++ {
			if b.Tile(pos) != 0 {
				seen[pos] = true
			}
		}
		if b.EmptyCount() != 15 {
			t.Fatalf("expected exactly one tile, got %#016x", uint64(b))
		}
		if four {
			rank2++
		}
	}
	if len(seen) != 16 {
		t.Fatalf("expected all 16 cells to be chosen, got %d", len(seen))
	}
	if rank2 == 0 || rank2 > 100 {
		t.Fatalf("unexpected number of rank-2 tiles: %d", rank2)
	}
}

func TestPlaceRandomTileFillsOnlyEmptyCells(t *testing.T) {
	s := NewSpawner(42)
	b := Board(0x1111_1111_1111_1110)
	next, _ := s.PlaceRandomTile(b)
	if next&0xf == 0 || next&^0xf != b {
		t.Fatalf("expected the only empty cell to be filled, got %#016x", uint64(next))
	}
}

func TestPlaceRandomTilePanicsOnFullBoard(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on a full board")
		}
	}()
	NewSpawner(0).PlaceRandomTile(deadBoard)
}

func TestNewGameSpawnsTwoTiles(t *testing.T) {
	g := NewGame(0)
	if g.Board() != 0x0000_0000_0010_0001 || g.Rank2Count() != 0 {
		t.Fatalf("unexpected opening %#016x rank2=%d", uint64(g.Board()), g.Rank2Count())
	}
	if g.Seed() != DefaultSpawnSeed {
		t.Fatalf("expected default seed, got %#x", g.Seed())
	}
}
