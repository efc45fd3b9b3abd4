// Package ws provides the WebSocket notification bridge: a registry of
// connected clients and best-effort fan-out of chat events to them.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/dkrenev/supportflow/internal/domain"
)

// Event types pushed over the chat channel.
const (
	EventMessage     = "message"
	EventTyping      = "typing"
	EventHumanReview = "human_review"
	EventStatus      = "status"
)

// Event is the wire shape of one chat channel message.
type Event struct {
	Type           string                 `json:"type"`
	SessionID      string                 `json:"sessionId,omitempty"`
	UserName       string                 `json:"userName,omitempty"`
	Content        string                 `json:"content,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Classification *domain.Classification `json:"classification,omitempty"`
	Review         any                    `json:"review,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// Conn is the transport handle the hub writes to. Satisfied by
// *websocket.Conn.
type Conn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
}

// Hub is the concurrent registry of connected listeners. Delivery is
// best-effort: a failed write to one listener never blocks the others and
// never fails the caller.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]Conn)}
}

// Register adds a connection under the given id.
func (h *Hub) Register(connID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[connID] = conn
	slog.Info("Chat listener connected", "conn_id", connID, "active", len(h.conns))
}

// Unregister removes a connection.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; ok {
		delete(h.conns, connID)
		slog.Info("Chat listener disconnected", "conn_id", connID, "active", len(h.conns))
	}
}

// Count returns the number of connected listeners.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast delivers the event to every connected listener.
func (h *Hub) Broadcast(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to encode chat event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	targets := make(map[string]Conn, len(h.conns))
	for id, conn := range h.conns {
		targets[id] = conn
	}
	h.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Warn("Failed to deliver chat event", "conn_id", id, "type", event.Type, "error", err)
		}
	}
}

// SendTo delivers the event to one listener. Reports whether the listener
// was connected.
func (h *Hub) SendTo(ctx context.Context, connID string, event Event) bool {
	h.mu.RLock()
	conn, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to encode chat event", "type", event.Type, "error", err)
		return false
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Warn("Failed to deliver chat event", "conn_id", connID, "type", event.Type, "error", err)
		return false
	}
	return true
}
