package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type batchSnapshot struct {
	Event string     `json:"event"`
	Jobs  []BatchJob `json:"jobs"`
	At    int64      `json:"at_ms"`
}

type BatchClient struct {
	hub  *BatchHub
	conn *websocket.Conn
	send chan []byte
}

type BatchHub struct {
	mu        sync.Mutex
	clients   map[*BatchClient]struct{}
	broadcast chan batchEvent
}

func NewBatchHub() *BatchHub {
	return &BatchHub{
		clients:   make(map[*BatchClient]struct{}),
		broadcast: make(chan batchEvent, 64),
	}
}

func (h *BatchHub) Run(done <-chan struct{}) {
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
			msg := wsMessage{Type: "batch", Payload: mustMarshal(payload)}
			for client := range h.clients {
				client.sendJSON(msg)
			}
			h.mu.Unlock()
		}
	}
}

func (h *BatchHub) Publish(payload batchEvent) {
	select {
	case h.broadcast <- payload:
	default:
	}
}

func (h *BatchHub) Register(c *BatchClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *BatchHub) Unregister(c *BatchClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *BatchClient) sendJSON(msg wsMessage) {
	data, err := marshalMessage(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func serveBatchWS(hub *BatchHub, runner *batchRunner, w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := &BatchClient{hub: hub, conn: conn, send: make(chan []byte, 16)}
	hub.Register(client)

	initial := batchSnapshot{
		Event: "snapshot",
		Jobs:  runner.Jobs(),
		At:    time.Now().UnixMilli(),
	}
	client.sendJSON(wsMessage{Type: "batch", Payload: mustMarshal(initial)})

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
