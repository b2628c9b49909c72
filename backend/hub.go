package main

import (
	"encoding/json"
	"sync"
)

type Hub struct {
	mu                sync.Mutex
	clients           map[*Client]struct{}
	broadcastTurn     chan turnPayload
	broadcastStatus   chan StatusResponse
	broadcastReset    chan resetPayload
	broadcastSettings chan settingsPayload
}

type Client struct {
	hub  *Hub
	send chan []byte
}

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type turnPayload struct {
	Grid   [4][4]int       `json:"grid"`
	Status string          `json:"status"`
	Score  int             `json:"score"`
	Entry  historyEntryDTO `json:"entry"`
}

type resetPayload struct {
	Reason string         `json:"reason"`
	Status StatusResponse `json:"status"`
}

type settingsPayload struct {
	Settings GameSettingsDTO `json:"settings"`
}

func NewHub() *Hub {
	return &Hub{
		clients:           make(map[*Client]struct{}),
		broadcastTurn:     make(chan turnPayload, 32),
		broadcastStatus:   make(chan StatusResponse, 32),
		broadcastReset:    make(chan resetPayload, 8),
		broadcastSettings: make(chan settingsPayload, 8),
	}
}

func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-h.broadcastTurn:
			h.broadcast("turn", payload)
		case payload := <-h.broadcastStatus:
			h.broadcast("status", payload)
		case payload := <-h.broadcastReset:
			h.broadcast("reset", payload)
		case payload := <-h.broadcastSettings:
			h.broadcast("settings", payload)
		}
	}
}

func (h *Hub) broadcast(kind string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) == 0 {
		return
	}
	msg := wsMessage{Type: kind, Payload: mustMarshal(payload)}
	for client := range h.clients {
		client.sendJSON(msg)
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) HasClients() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients) > 0
}

// sendJSON drops the message when the client's buffer is full.
func (c *Client) sendJSON(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
