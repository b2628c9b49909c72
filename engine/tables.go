package engine

import "sync"

type moveTables struct {
	right [1 << 16]uint16
	left  [1 << 16]uint16
}

var (
	moveTablesOnce sync.Once
	moveTablesData *moveTables
)

func tables() *moveTables {
	moveTablesOnce.Do(func() {
		moveTablesData = buildMoveTables()
	})
	return moveTablesData
}

func buildMoveTables() *moveTables {
	t := &moveTables{}
	for n := 0; n < 1<<16; n++ {
		row := uint16(n)
		res := slideRowRight(row)
		t.right[row] = res
		t.left[ReverseRow(row)] = ReverseRow(res)
	}
	return t
}

// slideRowRight compacts a row toward nibble 0. Equal neighbours merge into
// rank+1 once; rank 15 saturates but still consumes both tiles.
func slideRowRight(row uint16) uint16 {
	var res uint16
	mergeVal := row & 0xf
	dest := -4
	if mergeVal != 0 {
		res = mergeVal
		dest = 0
	}
	for pos := 1; pos < 4; pos++ {
		val := (row >> (pos * 4)) & 0xf
		switch {
		case val == 0:
		case val == mergeVal:
			if (res>>dest)&0xf != maxRank {
				res += 1 << dest
			}
			mergeVal = 0
		default:
			dest += 4
			mergeVal = val
			res |= val << dest
		}
	}
	return res
}

func ReverseRow(row uint16) uint16 {
	return row>>12 | (row>>4)&0x00f0 | (row<<4)&0x0f00 | row<<12
}

func SlideRowRight(row uint16) uint16 {
	return tables().right[row]
}

func SlideRowLeft(row uint16) uint16 {
	return tables().left[row]
}
