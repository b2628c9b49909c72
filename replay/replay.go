// Package replay reads and writes the per-turn decision log of a game.
//
// A replay file is a flat sequence of fixed-width little-endian records:
//
//	u64 board | i32 rank-2 spawns | f32 score | f32 end probability |
//	i8 direction | u8 depth | u8 rounds
package replay

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/thekrainbow/deep2048/engine"
)

const RecordSize = 23

var ErrTruncated = errors.New("replay: truncated record")

func encode(buf []byte, rec engine.TurnRecord) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.Board))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(rec.Rank2Count))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(rec.Score))
	binary.LittleEndian.PutUint32(buf[16:20], math.Float32bits(rec.EndProb))
	buf[20] = byte(rec.Direction)
	buf[21] = rec.Depth
	buf[22] = rec.Rounds
}

func decode(buf []byte) engine.TurnRecord {
	return engine.TurnRecord{
		Board:      engine.Board(binary.LittleEndian.Uint64(buf[0:8])),
		Rank2Count: int32(binary.LittleEndian.Uint32(buf[8:12])),
		Score:      math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16])),
		EndProb:    math.Float32frombits(binary.LittleEndian.Uint32(buf[16:20])),
		Direction:  int8(buf[20]),
		Depth:      buf[21],
		Rounds:     buf[22],
	}
}

// Writer appends records to an underlying stream. It implements
// engine.TurnSink so a game can log straight into it.
type Writer struct {
	bw      *bufio.Writer
	closer  io.Closer
	buf     [RecordSize]byte
	records int
}

func NewWriter(w io.Writer) *Writer {
	rw := &Writer{bw: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		rw.closer = c
	}
	return rw
}

func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create replay %s: %w", path, err)
	}
	return NewWriter(f), nil
}

func (w *Writer) RecordTurn(rec engine.TurnRecord) error {
	encode(w.buf[:], rec)
	if _, err := w.bw.Write(w.buf[:]); err != nil {
		return fmt.Errorf("write replay record %d: %w", w.records, err)
	}
	w.records++
	return nil
}

func (w *Writer) Records() int {
	return w.records
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) Close() error {
	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type Reader struct {
	r   io.Reader
	buf [RecordSize]byte
	n   int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns io.EOF after the last complete record, or an error wrapping
// ErrTruncated when the stream ends inside a record.
func (r *Reader) Next() (engine.TurnRecord, error) {
	_, err := io.ReadFull(r.r, r.buf[:])
	switch {
	case err == io.EOF:
		return engine.TurnRecord{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return engine.TurnRecord{}, fmt.Errorf("record %d: %w", r.n, ErrTruncated)
	case err != nil:
		return engine.TurnRecord{}, fmt.Errorf("read replay record %d: %w", r.n, err)
	}
	r.n++
	return decode(r.buf[:]), nil
}

func ReadAll(r io.Reader) ([]engine.TurnRecord, error) {
	rd := NewReader(r)
	var out []engine.TurnRecord
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func ReadFile(path string) ([]engine.TurnRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay %s: %w", path, err)
	}
	defer f.Close()
	recs, err := ReadAll(f)
	if err != nil {
		return recs, fmt.Errorf("%s: %w", path, err)
	}
	return recs, nil
}
