package engine

const DefaultSpawnSeed uint32 = 0x17004711

// Spawner places the random tiles of a game. It is a xorshift32 stream and
// must be owned by a single game.
type Spawner struct {
	state uint32
}

func NewSpawner(seed uint32) *Spawner {
	if seed == 0 {
		seed = DefaultSpawnSeed
	}
	return &Spawner{state: seed}
}

func (s *Spawner) Seed() uint32 {
	return s.state
}

func (s *Spawner) Intn(n int) int {
	if n <= 0 {
		panic("engine: Intn called with n <= 0")
	}
	x := s.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	s.state = x
	return int(x % uint32(n))
}

// PlaceRandomTile puts a rank-1 tile (90%) or rank-2 tile (10%) on a random
// empty cell of b. The second result reports a rank-2 tile.
func (s *Spawner) PlaceRandomTile(b Board) (Board, bool) {
	size := 16
	if b != 0 {
		size = b.EmptyCount()
	}
	if size == 0 {
		panic("engine: no empty cell to place a tile")
	}
	n := s.Intn(size)
	pos := -1
	for n >= 0 {
		pos++
		if b.Tile(pos) == 0 {
			n--
		}
	}
	if s.Intn(10) == 0 {
		return b.SetTile(pos, 2), true
	}
	return b.SetTile(pos, 1), false
}
