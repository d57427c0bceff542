// Package ws streams committed frames to websocket viewers.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nathoo/agentsim/engine/export"
	"github.com/nathoo/agentsim/engine/world"
)

// Hub is a clock observer that broadcasts every committed frame to all
// connected viewers. Slow viewers only ever get the newest frame.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.Mutex
	clients map[string]chan []byte
	latest  []byte
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]chan []byte{},
	}
}

// OnTickCommitted encodes the snapshot and queues it for every viewer.
func (h *Hub) OnTickCommitted(tick uint64, snap *world.Snapshot) {
	b, err := export.Marshal(snap)
	if err != nil {
		h.logger.Error("encode frame", "tick", tick, "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = b
	for _, out := range h.clients {
		sendLatest(out, b)
	}
}

// Clients returns the number of connected viewers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every viewer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, out := range h.clients {
		close(out)
		delete(h.clients, id)
	}
}

// ServeHTTP upgrades the request and streams frames until the viewer
// disconnects. The newest frame, if any, is sent immediately.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("V%d", h.nextID.Add(1))
	out := make(chan []byte, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
		return
	}
	h.clients[id] = out
	if h.latest != nil {
		sendLatest(out, h.latest)
	}
	h.mu.Unlock()
	h.logger.Debug("viewer connected", "viewer", id, "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[id]; ok {
			delete(h.clients, id)
			close(out)
		}
		h.mu.Unlock()
		h.logger.Debug("viewer disconnected", "viewer", id)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				writeErr <- ctx.Err()
				return
			case b, ok := <-out:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(time.Second))
					writeErr <- nil
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					writeErr <- err
					return
				}
			}
		}
	}()

	// Viewers never send anything meaningful; reading detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()

	select {
	case <-writeErr:
	case <-time.After(500 * time.Millisecond):
	}
}

// sendLatest queues b, dropping an older unsent frame if the buffer is full.
func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
