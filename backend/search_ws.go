package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thekrainbow/deep2048/engine"
)

// searchPayload reports one deepening round of the turn currently being
// decided.
type searchPayload struct {
	Turn      int       `json:"turn"`
	Grid      [4][4]int `json:"grid"`
	Round     int       `json:"round"`
	Depth     int       `json:"depth"`
	State     string    `json:"state"`
	Direction string    `json:"direction"`
	Score     float64   `json:"score"`
	EndProb   float64   `json:"end_prob"`
	ElapsedMs float64   `json:"elapsed_ms"`
	At        int64     `json:"at_ms"`
}

type SearchClient struct {
	hub  *SearchHub
	conn *websocket.Conn
	send chan []byte
}

type SearchHub struct {
	mu        sync.Mutex
	clients   map[*SearchClient]struct{}
	broadcast chan searchPayload
}

func NewSearchHub() *SearchHub {
	return &SearchHub{
		clients:   make(map[*SearchClient]struct{}),
		broadcast: make(chan searchPayload, 64),
	}
}

func (h *SearchHub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-h.broadcast:
			h.mu.Lock()
			if len(h.clients) == 0 {
				h.mu.Unlock()
				continue
			}
			msg := wsMessage{Type: "search", Payload: mustMarshal(payload)}
			for client := range h.clients {
				client.sendJSON(msg)
			}
			h.mu.Unlock()
		}
	}
}

func (h *SearchHub) Register(c *SearchClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *SearchHub) Unregister(c *SearchClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *SearchHub) Publish(payload searchPayload) {
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *SearchHub) HasClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) > 0
}

func (c *SearchClient) sendJSON(msg wsMessage) {
	data, err := marshalMessage(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func serveSearchWS(hub *SearchHub, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &SearchClient{hub: hub, conn: conn, send: make(chan []byte, 32)}
	hub.Register(client)

	go func() {
		defer conn.Close()
		_ = writeWSWithHeartbeat(conn, client.send)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.Unregister(client)
			return
		}
	}
}

func searchPayloadFromRound(b engine.Board, turn int, r engine.Round) searchPayload {
	return searchPayload{
		Turn:      turn,
		Grid:      b.Grid(),
		Round:     r.Round,
		Depth:     r.Depth,
		State:     r.State.String(),
		Direction: r.Direction.String(),
		Score:     finiteOrZero(r.Score),
		EndProb:   r.EndProb,
		ElapsedMs: float64(r.Elapsed.Microseconds()) / 1000,
		At:        time.Now().UnixMilli(),
	}
}
