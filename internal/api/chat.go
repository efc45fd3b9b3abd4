package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/domain"
	"github.com/dkrenev/supportflow/internal/session"
	"github.com/dkrenev/supportflow/internal/workflow"
	"github.com/dkrenev/supportflow/internal/ws"
)

const (
	replyProcessingFailed = "Sorry, something went wrong while processing your message. Please try again later."
	replyNoDraft          = "Sorry, I couldn't process your message."
)

// SendMessageRequest is the POST /api/chat/send body.
type SendMessageRequest struct {
	Message   string `json:"message"`
	UserName  string `json:"userName"`
	SessionID string `json:"sessionId"`
}

// chatReply is the assistant message returned by send and resume. SessionID
// lets the client keep a server-generated session id.
type chatReply struct {
	domain.ChatMessage
	SessionID string `json:"sessionId,omitempty"`
}

// ChatHandler handles the chat endpoints.
type ChatHandler struct {
	svc      *agent.Service
	sessions sessionRegistry
	hub      *ws.Hub
}

// sessionRegistry is the subset of the session registry the handler depends
// on. Satisfied by *session.Registry.
type sessionRegistry interface {
	GetOrCreate(sessionID, userName string) domain.Session
	Get(sessionID string) (domain.Session, bool)
	MarkPaused(sessionID string, paused bool) bool
	SetTyping(sessionID string, typing bool) bool
	InvalidateAll() int
	Stats() session.Stats
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *agent.Service, sessions sessionRegistry, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{svc: svc, sessions: sessions, hub: hub}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/send", h.Send)
		r.Post("/resume", h.Resume)
		r.Get("/session/{sessionID}", h.GetSession)
		r.Post("/session/{sessionID}/typing", h.SetTyping)
		r.Post("/clear-sessions", h.ClearSessions)
		r.Get("/sessions-stats", h.SessionsStats)
	})
}

// Send runs the workflow on one inbound customer message.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	h.sessions.GetOrCreate(sessionID, req.UserName)

	slog.Info("Chat message received", "session_id", sessionID, "user_name", req.UserName)

	// Echo the customer message to connected clients before the workflow
	// runs, so other tabs see it immediately.
	h.hub.Broadcast(r.Context(), ws.Event{
		Type:      ws.EventMessage,
		SessionID: sessionID,
		UserName:  req.UserName,
		Content:   req.Message,
		Status:    domain.StatusSent,
		Timestamp: time.Now().UnixMilli(),
	})

	result, err := h.svc.Run(r.Context(), sessionID, req.Message, req.UserName)
	if err != nil {
		slog.Error("Workflow run failed", "session_id", sessionID, "error", err)
		JSON(w, http.StatusOK, h.errorReply(sessionID))
		return
	}

	reply := chatReply{
		ChatMessage: domain.ChatMessage{
			ID:        uuid.NewString(),
			Type:      "assistant",
			Timestamp: time.Now().UnixMilli(),
			Content:   result.State.String(agent.KeyDraftResponse),
		},
		SessionID: sessionID,
	}
	if classification, ok := agent.ClassificationFrom(result.State); ok {
		reply.Classification = &classification
	}

	if result.Interrupted {
		reply.Status = domain.StatusWaitingHuman
		h.sessions.MarkPaused(sessionID, true)
		h.broadcastReviewRequest(r, sessionID, req.UserName, reply.Classification)
	} else {
		reply.Status = domain.StatusCompleted
		h.sessions.MarkPaused(sessionID, false)
		if reply.Content == "" {
			reply.Content = replyNoDraft
		}
	}

	JSON(w, http.StatusOK, reply)
}

// broadcastReviewRequest notifies connected reviewers that a session is
// waiting on a human decision. Failures are logged, never surfaced.
func (h *ChatHandler) broadcastReviewRequest(r *http.Request, sessionID, userName string, classification *domain.Classification) {
	payload, err := h.svc.PendingReview(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load pending review", "session_id", sessionID, "error", err)
		return
	}
	h.hub.Broadcast(r.Context(), ws.Event{
		Type:           ws.EventHumanReview,
		SessionID:      sessionID,
		UserName:       userName,
		Content:        payload.DraftResponse,
		Classification: classification,
		Review:         payload,
		Timestamp:      time.Now().UnixMilli(),
	})
}

// Resume feeds the human decision into a paused session and finishes the run.
func (h *ChatHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	feedback := r.URL.Query().Get("feedback")
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	if _, ok := h.sessions.Get(sessionID); !ok {
		Error(w, http.StatusBadRequest, "unknown session")
		return
	}

	slog.Info("Human feedback received", "session_id", sessionID)

	result, err := h.svc.Resume(r.Context(), sessionID, feedback)
	if err != nil {
		if errors.Is(err, workflow.ErrInvalidResumeState) {
			Error(w, http.StatusConflict, "no review pending for this session")
			return
		}
		slog.Error("Workflow resume failed", "session_id", sessionID, "error", err)
		JSON(w, http.StatusOK, h.errorReply(sessionID))
		return
	}

	h.sessions.MarkPaused(sessionID, false)

	reply := chatReply{
		ChatMessage: domain.ChatMessage{
			ID:        uuid.NewString(),
			Type:      "assistant",
			Timestamp: time.Now().UnixMilli(),
			Content:   result.State.String(agent.KeyDraftResponse),
			Status:    domain.StatusCompleted,
		},
		SessionID: sessionID,
	}
	if classification, ok := agent.ClassificationFrom(result.State); ok {
		reply.Classification = &classification
	}
	JSON(w, http.StatusOK, reply)
}

// GetSession returns the session metadata or 404.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	s, ok := h.sessions.Get(sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, s)
}

// SetTyping flips the typing indicator on a session. Unknown sessions are
// ignored.
func (h *ChatHandler) SetTyping(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	typing, err := strconv.ParseBool(r.URL.Query().Get("typing"))
	if err != nil {
		Error(w, http.StatusBadRequest, "typing must be a boolean")
		return
	}
	h.sessions.SetTyping(sessionID, typing)
	w.WriteHeader(http.StatusOK)
}

// ClearSessions drops every session from the registry.
func (h *ChatHandler) ClearSessions(w http.ResponseWriter, r *http.Request) {
	removed := h.sessions.InvalidateAll()
	slog.Info("Sessions cleared", "removed", removed)
	JSON(w, http.StatusOK, map[string]interface{}{
		"removedCount":   removed,
		"activeSessions": 0,
		"timestamp":      time.Now().UnixMilli(),
	})
}

// SessionsStats reports registry counters.
func (h *ChatHandler) SessionsStats(w http.ResponseWriter, r *http.Request) {
	stats := h.sessions.Stats()
	JSON(w, http.StatusOK, sessionsStatsReply{
		Stats:     stats,
		Timestamp: time.Now().UnixMilli(),
	})
}

type sessionsStatsReply struct {
	session.Stats
	Timestamp int64 `json:"timestamp"`
}

func (h *ChatHandler) errorReply(sessionID string) chatReply {
	return chatReply{
		ChatMessage: domain.ChatMessage{
			ID:        uuid.NewString(),
			Content:   replyProcessingFailed,
			Type:      "assistant",
			Timestamp: time.Now().UnixMilli(),
			Status:    domain.StatusError,
		},
		SessionID: sessionID,
	}
}
