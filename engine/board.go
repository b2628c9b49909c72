package engine

import (
	"fmt"
	"iter"
	"math/bits"
	"strings"
)

// Board packs a 4x4 grid of tile ranks into 16 nibbles. Nibble i holds cell
// i, row r occupies bits 16r..16r+15. A rank r displays as 2^r, 0 is empty.
type Board uint64

const (
	rowMask    = 0xffff
	nibbleOnes = 0x1111_1111_1111_1111
	maxRank    = 15
)

type Direction int

const (
	DirNone Direction = iota - 1
	Right
	Down
	Left
	Up
)

// Directions lists the slide directions in search order. The order is the
// tie-break wherever two moves score the same.
var Directions = [4]Direction{Right, Down, Left, Up}

func (d Direction) String() string {
	switch d {
	case Right:
		return "R"
	case Down:
		return "D"
	case Left:
		return "L"
	case Up:
		return "U"
	default:
		return "none"
	}
}

func (d Direction) Valid() bool {
	return d >= Right && d <= Up
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "r", "right":
		return Right, nil
	case "d", "down":
		return Down, nil
	case "l", "left":
		return Left, nil
	case "u", "up":
		return Up, nil
	}
	return DirNone, fmt.Errorf("unknown direction %q", s)
}

func (b Board) Tile(pos int) int {
	if pos < 0 || pos >= 16 {
		panic(fmt.Sprintf("engine: tile index %d out of range", pos))
	}
	return int((uint64(b) >> (uint(pos) * 4)) & 0xf)
}

// SetTile returns b with rank placed at pos. The target cell must be empty.
func (b Board) SetTile(pos, rank int) Board {
	if b.Tile(pos) != 0 {
		panic(fmt.Sprintf("engine: tile %d already occupied", pos))
	}
	if rank < 1 || rank > maxRank {
		panic(fmt.Sprintf("engine: rank %d out of range", rank))
	}
	return b | Board(uint64(rank)<<(uint(pos)*4))
}

// EmptyCount returns the number of empty cells. The all-empty board wraps
// the nibble counter and reports 0; callers handle Board(0) themselves.
func (b Board) EmptyCount() int {
	x := uint64(b)
	e := ^(x | x>>1 | x>>2 | x>>3) & nibbleOnes
	e += e >> 16
	e += e >> 32
	e += e >> 4
	e += e >> 8
	return int(e & 0xf)
}

func (b Board) DistinctRanks() int {
	var seen uint16
	for x := uint64(b); x != 0; x >>= 4 {
		seen |= 1 << (x & 0xf)
	}
	return bits.OnesCount16(seen &^ 1)
}

func (b Board) MaxRank() int {
	best := 0
	for x := uint64(b); x != 0; x >>= 4 {
		if r := int(x & 0xf); r > best {
			best = r
		}
	}
	return best
}

func (b Board) Row(r int) uint16 {
	return uint16(uint64(b) >> (uint(r) * 16))
}

func (b Board) Transpose() Board {
	x := uint64(b)
	a1 := x & 0xf0f0_0f0f_f0f0_0f0f
	a2 := x & 0x0000_f0f0_0000_f0f0
	a3 := x & 0x0f0f_0000_0f0f_0000
	a := a1 | a2<<12 | a3>>12
	b1 := a & 0xff00_ff00_00ff_00ff
	b2 := a & 0x00ff_00ff_0000_0000
	b3 := a & 0x0000_0000_ff00_ff00
	return Board(b1 | b2>>24 | b3<<24)
}

// FlipHorizontal mirrors the board across its horizontal axis (row order is
// reversed).
func (b Board) FlipHorizontal() Board {
	x := uint64(b)
	a1 := x & 0xffff_0000_ffff_0000
	a2 := x & 0x0000_ffff_0000_ffff
	a := a1 | bits.RotateLeft64(a2, -32)
	return Board(bits.RotateLeft64(a, 16))
}

// FlipVertical mirrors the board across its vertical axis (every row is
// reversed).
func (b Board) FlipVertical() Board {
	x := uint64(b)
	a1 := x & 0xf000_f000_f000_f000
	a2 := x & 0x0f00_0f00_0f00_0f00
	a3 := x & 0x00f0_00f0_00f0_00f0
	a4 := x & 0x000f_000f_000f_000f
	return Board(a1>>12 | a2>>4 | a3<<4 | a4<<12)
}

// Symmetries yields the 8 images of b under the dihedral group, starting
// with b itself. Symmetric boards produce duplicates.
func (b Board) Symmetries() iter.Seq[Board] {
	return func(yield func(Board) bool) {
		cur := b
		for step := 0; step < 8; step++ {
			switch {
			case step%2 == 1:
				cur = cur.FlipHorizontal()
			case step == 2 || step == 6:
				cur = cur.FlipVertical()
			case step == 4:
				cur = cur.Transpose()
			}
			if !yield(cur) {
				return
			}
		}
	}
}

// Slide applies one move. Moves that cannot change the board return b.
func (b Board) Slide(dir Direction) Board {
	switch dir {
	case Right:
		return b.SlideRight()
	case Down:
		return b.SlideDown()
	case Left:
		return b.SlideLeft()
	case Up:
		return b.SlideUp()
	}
	panic(fmt.Sprintf("engine: unknown direction %d", dir))
}

func (b Board) SlideRight() Board {
	return slideRows(b, &tables().right)
}

func (b Board) SlideLeft() Board {
	return slideRows(b, &tables().left)
}

func (b Board) SlideDown() Board {
	return slideRows(b.Transpose(), &tables().right).Transpose()
}

func (b Board) SlideUp() Board {
	return slideRows(b.Transpose(), &tables().left).Transpose()
}

func slideRows(b Board, table *[1 << 16]uint16) Board {
	x := uint64(b)
	return Board(uint64(table[x&rowMask]) |
		uint64(table[(x>>16)&rowMask])<<16 |
		uint64(table[(x>>32)&rowMask])<<32 |
		uint64(table[(x>>48)&rowMask])<<48)
}

// HasMove reports whether any slide changes the board.
func (b Board) HasMove() bool {
	for _, dir := range Directions {
		if b.Slide(dir) != b {
			return true
		}
	}
	return false
}

// ApplyMove is the pure player transition used by drivers.
func ApplyMove(b Board, dir Direction) Board {
	return b.Slide(dir)
}

// GameScore is the in-game score of b: every merge into rank r earned 2^r,
// so a tile of rank r is worth (r-1)*2^r when all spawns are rank 1. Each
// rank-2 spawn was never merged into existence and is taken back.
func GameScore(b Board, rank2Count int) int {
	score := 0
	for x := uint64(b); x != 0; x >>= 4 {
		if r := int(x & 0xf); r >= 2 {
			score += (r - 1) << r
		}
	}
	return score - 4*rank2Count
}

// Grid unpacks b into displayed tile values, top row first. Cell 15 is the
// top-left corner.
func (b Board) Grid() [4][4]int {
	var grid [4][4]int
	for n := 0; n < 16; n++ {
		r := b.Tile(15 - n)
		if r != 0 {
			grid[n/4][n%4] = 1 << r
		}
	}
	return grid
}

func (b Board) String() string {
	labels := [...]string{"   ", "  2", "  4", "  8", " 16", " 32", " 64", "128", "256", "512", " 1K", " 2K", " 4K", " 8K", "16K", "32K"}
	var sb strings.Builder
	sb.WriteString("+---+---+---+---+\n")
	for n := 0; n < 16; n++ {
		sb.WriteString("|")
		sb.WriteString(labels[b.Tile(15-n)])
		if n%4 == 3 {
			sb.WriteString("|\n+---+---+---+---+\n")
		}
	}
	return sb.String()
}
