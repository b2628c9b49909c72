package main

import "github.com/thekrainbow/deep2048/engine"

type HistoryEntry struct {
	Turn      int
	Record    engine.TurnRecord
	ElapsedMs float64
	Stats     engine.SearchStats
}

// MoveHistory keeps the most recent turns of a game, bounded by limit.
type MoveHistory struct {
	entries []HistoryEntry
	limit   int
	total   int
}

func (h *MoveHistory) Clear() {
	h.entries = nil
	h.total = 0
}

func (h *MoveHistory) SetLimit(limit int) {
	h.limit = limit
	h.trim()
}

func (h *MoveHistory) Push(entry HistoryEntry) {
	h.entries = append(h.entries, entry)
	h.total++
	h.trim()
}

func (h *MoveHistory) trim() {
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append([]HistoryEntry(nil), h.entries[len(h.entries)-h.limit:]...)
	}
}

func (h MoveHistory) Size() int {
	return len(h.entries)
}

func (h MoveHistory) Total() int {
	return h.total
}

func (h MoveHistory) All() []HistoryEntry {
	return append([]HistoryEntry(nil), h.entries...)
}

func (h MoveHistory) Last() (HistoryEntry, bool) {
	if len(h.entries) == 0 {
		return HistoryEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}
