package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/domain"
	"github.com/dkrenev/supportflow/internal/session"
	"github.com/dkrenev/supportflow/internal/store"
	"github.com/dkrenev/supportflow/internal/ws"
)

// recordingConn captures hub events for assertions.
type recordingConn struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (c *recordingConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	return nil
}

func (c *recordingConn) events(t *testing.T) []ws.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ws.Event, 0, len(c.payloads))
	for _, p := range c.payloads {
		var event ws.Event
		if err := json.Unmarshal(p, &event); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		out = append(out, event)
	}
	return out
}

type fixedClassifier struct {
	result domain.Classification
}

func (f *fixedClassifier) Classify(ctx context.Context, message, userName string) (domain.Classification, error) {
	return f.result, nil
}

type echoDrafter struct{}

func (echoDrafter) Draft(ctx context.Context, req agent.DraftRequest) (string, error) {
	return "drafted: " + req.MessageContent, nil
}

type noopSearcher struct{}

func (noopSearcher) Search(ctx context.Context, query string) ([]string, error) {
	return []string{"doc"}, nil
}

type noopTracker struct{}

func (noopTracker) FileTicket(ctx context.Context, req agent.TicketRequest) (string, error) {
	return "BUG-1", nil
}

func newTestRouter(t *testing.T, classification domain.Classification) (*chi.Mux, *session.Registry, *ws.Hub) {
	t.Helper()
	svc, err := agent.NewService(agent.Collaborators{
		Classifier: &fixedClassifier{result: classification},
		Drafter:    echoDrafter{},
		Searcher:   noopSearcher{},
		Tracker:    noopTracker{},
	}, store.NewMemory())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	sessions := session.NewRegistry(session.Config{})
	hub := ws.NewHub()
	r := chi.NewRouter()
	NewChatHandler(svc, sessions, hub).RegisterRoutes(r)
	return r, sessions, hub
}

func questionClassification() domain.Classification {
	return domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyLow,
		Topic:   "password",
		Summary: "login question",
	}
}

func billingClassification() domain.Classification {
	return domain.Classification{
		Intent:  domain.IntentBilling,
		Urgency: domain.UrgencyMedium,
		Topic:   "invoice",
		Summary: "billing dispute",
	}
}

func postJSON(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeReply(t *testing.T, rec *httptest.ResponseRecorder) chatReply {
	t.Helper()
	var reply chatReply
	if err := json.NewDecoder(rec.Body).Decode(&reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return reply
}

func TestSendCompletesQuestion(t *testing.T) {
	r, sessions, _ := newTestRouter(t, questionClassification())

	rec := postJSON(t, r, "/api/chat/send",
		`{"message": "How do I reset my password?", "userName": "alice"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	reply := decodeReply(t, rec)
	if reply.Status != domain.StatusCompleted {
		t.Fatalf("expected status %q, got %q", domain.StatusCompleted, reply.Status)
	}
	if !strings.Contains(reply.Content, "How do I reset my password?") {
		t.Fatalf("unexpected content: %q", reply.Content)
	}
	if reply.SessionID == "" {
		t.Fatal("reply must carry the generated session id")
	}
	if reply.Classification == nil || reply.Classification.Intent != domain.IntentQuestion {
		t.Fatalf("unexpected classification: %+v", reply.Classification)
	}

	s, ok := sessions.Get(reply.SessionID)
	if !ok || s.UserName != "alice" || s.PausedForHuman {
		t.Fatalf("unexpected session: %+v ok=%v", s, ok)
	}
}

func TestSendRequiresMessage(t *testing.T) {
	r, _, _ := newTestRouter(t, questionClassification())

	rec := postJSON(t, r, "/api/chat/send", `{"userName": "alice"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendBillingWaitsForHuman(t *testing.T) {
	r, sessions, hub := newTestRouter(t, billingClassification())
	listener := &recordingConn{}
	hub.Register("reviewer", listener)

	rec := postJSON(t, r, "/api/chat/send",
		`{"message": "I was charged twice", "userName": "bob", "sessionId": "s1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	reply := decodeReply(t, rec)
	if reply.Status != domain.StatusWaitingHuman {
		t.Fatalf("expected status %q, got %q", domain.StatusWaitingHuman, reply.Status)
	}

	s, ok := sessions.Get("s1")
	if !ok || !s.PausedForHuman {
		t.Fatalf("session must be marked paused: %+v ok=%v", s, ok)
	}

	events := listener.events(t)
	if len(events) != 2 {
		t.Fatalf("expected message echo plus human_review, got %+v", events)
	}
	if events[0].Type != ws.EventMessage || events[0].Status != domain.StatusSent {
		t.Fatalf("expected the customer message echoed with status %q, got %+v", domain.StatusSent, events[0])
	}
	if events[1].Type != ws.EventHumanReview {
		t.Fatalf("expected a human_review event, got %+v", events[1])
	}
	if events[0].SessionID != "s1" || events[1].SessionID != "s1" {
		t.Fatalf("unexpected event sessions: %+v", events)
	}
}

func TestSendEchoesCustomerMessage(t *testing.T) {
	r, _, hub := newTestRouter(t, questionClassification())
	listener := &recordingConn{}
	hub.Register("other-tab", listener)

	rec := postJSON(t, r, "/api/chat/send",
		`{"message": "How do I reset my password?", "userName": "alice", "sessionId": "s2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	events := listener.events(t)
	if len(events) != 1 {
		t.Fatalf("expected one echoed message, got %+v", events)
	}
	got := events[0]
	if got.Type != ws.EventMessage || got.Status != domain.StatusSent {
		t.Fatalf("expected a message event with status %q, got %+v", domain.StatusSent, got)
	}
	if got.SessionID != "s2" || got.UserName != "alice" || got.Content != "How do I reset my password?" {
		t.Fatalf("unexpected echo payload: %+v", got)
	}
}

func TestResumeFlow(t *testing.T) {
	r, _, _ := newTestRouter(t, domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyHigh,
		Topic:   "outage",
		Summary: "outage question",
	})

	rec := postJSON(t, r, "/api/chat/send",
		`{"message": "Is the service down?", "userName": "carol", "sessionId": "s1"}`)
	if decodeReply(t, rec).Status != domain.StatusWaitingHuman {
		t.Fatal("expected the draft to wait for review")
	}

	rec = postJSON(t, r, "/api/chat/resume?sessionId=s1&feedback=approved", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	reply := decodeReply(t, rec)
	if reply.Status != domain.StatusCompleted {
		t.Fatalf("expected status %q, got %q", domain.StatusCompleted, reply.Status)
	}
	if !strings.Contains(reply.Content, "Is the service down?") {
		t.Fatalf("approved draft must be kept, got %q", reply.Content)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	r, _, _ := newTestRouter(t, questionClassification())

	rec := postJSON(t, r, "/api/chat/resume?sessionId=ghost&feedback=approved", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResumeWithoutPendingReview(t *testing.T) {
	r, _, _ := newTestRouter(t, questionClassification())

	rec := postJSON(t, r, "/api/chat/send",
		`{"message": "How do I export data?", "userName": "dave", "sessionId": "s1"}`)
	if decodeReply(t, rec).Status != domain.StatusCompleted {
		t.Fatal("setup: run should complete without review")
	}

	rec = postJSON(t, r, "/api/chat/resume?sessionId=s1&feedback=approved", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetSession(t *testing.T) {
	r, sessions, _ := newTestRouter(t, questionClassification())
	sessions.GetOrCreate("s1", "erin")

	req := httptest.NewRequest(http.MethodGet, "/api/chat/session/s1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var s domain.Session
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if s.SessionID != "s1" || s.UserName != "erin" {
		t.Fatalf("unexpected session: %+v", s)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/chat/session/missing", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSetTyping(t *testing.T) {
	r, sessions, _ := newTestRouter(t, questionClassification())
	sessions.GetOrCreate("s1", "frank")

	rec := postJSON(t, r, "/api/chat/session/s1/typing?typing=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if s, _ := sessions.Get("s1"); !s.Typing {
		t.Fatal("typing flag must be set")
	}

	rec = postJSON(t, r, "/api/chat/session/s1/typing?typing=nope", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad bool, got %d", rec.Code)
	}
}

func TestClearSessionsAndStats(t *testing.T) {
	r, sessions, _ := newTestRouter(t, questionClassification())
	sessions.GetOrCreate("s1", "a")
	sessions.GetOrCreate("s2", "b")

	req := httptest.NewRequest(http.MethodGet, "/api/chat/sessions-stats", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats sessionsStatsReply
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Size != 2 {
		t.Fatalf("expected 2 sessions, got %d", stats.Size)
	}

	rec = postJSON(t, r, "/api/chat/clear-sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var cleared map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode clear response: %v", err)
	}
	if cleared["removedCount"].(float64) != 2 {
		t.Fatalf("expected removedCount 2, got %v", cleared["removedCount"])
	}
	if stats := sessions.Stats(); stats.Size != 0 {
		t.Fatalf("registry must be empty after clear, got %d", stats.Size)
	}
}
