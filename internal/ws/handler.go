package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/dkrenev/supportflow/internal/session"
)

// Handler upgrades HTTP requests on the chat channel and keeps the
// connection registered with the hub for the lifetime of the socket.
type Handler struct {
	hub           *Hub
	sessions      *session.Registry
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket chat handler.
func NewHandler(hub *Hub, sessions *session.Registry, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "ip", r.RemoteAddr)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	connID := uuid.NewString()
	h.hub.Register(connID, ws)
	defer h.hub.Unregister(connID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	greeting := Event{
		Type:      EventStatus,
		Content:   "connected",
		Timestamp: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(greeting)
	if err == nil {
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			slog.Debug("Failed to send connected greeting", "error", err, "conn_id", connID)
			return
		}
	}

	h.readLoop(ctx, ws, connID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop consumes client messages. The only inbound type acted on is
// "typing", which flips the typing flag on the named session; everything
// else is logged and ignored.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, connID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "conn_id", connID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(message, &event); err != nil {
			slog.Warn("Malformed chat message ignored", "error", err, "conn_id", connID)
			continue
		}

		switch event.Type {
		case EventTyping:
			if event.SessionID == "" {
				continue
			}
			typing := event.Content != "false"
			if !h.sessions.SetTyping(event.SessionID, typing) {
				slog.Debug("Typing update for unknown session", "session_id", event.SessionID)
			}
		case "ping":
			pong, err := json.Marshal(Event{Type: EventStatus, Content: "pong", Timestamp: time.Now().UnixMilli()})
			if err == nil {
				if err := ws.Write(ctx, websocket.MessageText, pong); err != nil {
					slog.Debug("Failed to send pong", "error", err, "conn_id", connID)
				}
			}
		default:
			slog.Debug("Unhandled chat message type", "type", event.Type, "conn_id", connID)
		}
	}
}
