package agent_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/domain"
	"github.com/dkrenev/supportflow/internal/store"
	"github.com/dkrenev/supportflow/internal/workflow"
)

type stubClassifier struct {
	result domain.Classification
	err    error
}

func (s *stubClassifier) Classify(ctx context.Context, message, userName string) (domain.Classification, error) {
	return s.result, s.err
}

type stubDrafter struct {
	lastReq agent.DraftRequest
	err     error
}

func (s *stubDrafter) Draft(ctx context.Context, req agent.DraftRequest) (string, error) {
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("reply to %q", req.MessageContent), nil
}

type stubSearcher struct {
	lastQuery string
	results   []string
	err       error
}

func (s *stubSearcher) Search(ctx context.Context, query string) ([]string, error) {
	s.lastQuery = query
	return s.results, s.err
}

type stubTracker struct {
	lastReq agent.TicketRequest
	calls   int
}

func (s *stubTracker) FileTicket(ctx context.Context, req agent.TicketRequest) (string, error) {
	s.lastReq = req
	s.calls++
	return "BUG-42", nil
}

func newTestService(t *testing.T, classification domain.Classification) (*agent.Service, *stubDrafter, *stubSearcher, *stubTracker) {
	t.Helper()
	drafter := &stubDrafter{}
	searcher := &stubSearcher{results: []string{"how to reset a password"}}
	bugs := &stubTracker{}
	svc, err := agent.NewService(agent.Collaborators{
		Classifier: &stubClassifier{result: classification},
		Drafter:    drafter,
		Searcher:   searcher,
		Tracker:    bugs,
	}, store.NewMemory())
	require.NoError(t, err)
	return svc, drafter, searcher, bugs
}

func TestQuestionFlowsThroughSearchAndCompletes(t *testing.T) {
	svc, drafter, searcher, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyLow,
		Topic:   "password reset",
		Summary: "user cannot log in",
	})
	ctx := context.Background()

	result, err := svc.Run(ctx, "s1", "How do I reset my password?", "alice")
	require.NoError(t, err)
	require.False(t, result.Interrupted)
	require.Equal(t, "QUESTION password reset", searcher.lastQuery)
	require.Equal(t, []string{"how to reset a password"}, drafter.lastReq.SearchResults)
	require.Contains(t, result.State.String(agent.KeyDraftResponse), "How do I reset my password?")

	paused, err := svc.IsInterrupted(ctx, "s1")
	require.NoError(t, err)
	require.False(t, paused)
}

func TestBugFlowFilesTicket(t *testing.T) {
	svc, drafter, _, bugs := newTestService(t, domain.Classification{
		Intent:  domain.IntentBug,
		Urgency: domain.UrgencyMedium,
		Topic:   "export",
		Summary: "export button crashes",
	})

	result, err := svc.Run(context.Background(), "s1", "The export button crashes the app", "bob")
	require.NoError(t, err)
	require.False(t, result.Interrupted)
	require.Equal(t, 1, bugs.calls)
	require.Equal(t, "export button crashes", bugs.lastReq.Summary)
	require.Equal(t, "export", bugs.lastReq.Topic)
	require.Equal(t, []string{"Bug ticket BUG-42 created"}, drafter.lastReq.SearchResults)
}

func TestBillingPausesBeforeReview(t *testing.T) {
	svc, _, searcher, bugs := newTestService(t, domain.Classification{
		Intent:  domain.IntentBilling,
		Urgency: domain.UrgencyMedium,
		Topic:   "invoice",
		Summary: "double charge",
	})
	ctx := context.Background()

	result, err := svc.Run(ctx, "s1", "I was charged twice", "carol")
	require.NoError(t, err)
	require.True(t, result.Interrupted)
	require.Equal(t, agent.StepHumanReview, result.InterruptNode)
	// Billing goes straight to review; no search, no ticket, no draft.
	require.Empty(t, searcher.lastQuery)
	require.Zero(t, bugs.calls)
	require.Empty(t, result.State.String(agent.KeyDraftResponse))

	payload, err := svc.PendingReview(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "I was charged twice", payload.MessageContext)
	require.Equal(t, "BILLING", payload.Intent)
	require.Equal(t, domain.UrgencyMedium, payload.Urgency)
	require.NotEmpty(t, payload.Action)
}

func TestHighUrgencyDraftNeedsApproval(t *testing.T) {
	svc, _, _, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyHigh,
		Topic:   "outage",
		Summary: "service down",
	})
	ctx := context.Background()

	result, err := svc.Run(ctx, "s1", "Is the service down?", "dave")
	require.NoError(t, err)
	require.True(t, result.Interrupted)
	draft := result.State.String(agent.KeyDraftResponse)
	require.NotEmpty(t, draft)

	resumed, err := svc.Resume(ctx, "s1", "approved")
	require.NoError(t, err)
	require.False(t, resumed.Interrupted)
	require.Equal(t, draft, resumed.State.String(agent.KeyDraftResponse))
}

func TestRejectedReviewDiscardsDraft(t *testing.T) {
	svc, _, _, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyCritical,
		Topic:   "outage",
		Summary: "service down",
	})
	ctx := context.Background()

	result, err := svc.Run(ctx, "s1", "Everything is broken!", "erin")
	require.NoError(t, err)
	require.True(t, result.Interrupted)
	require.NotEmpty(t, result.State.String(agent.KeyDraftResponse))

	resumed, err := svc.Resume(ctx, "s1", "needs a softer tone")
	require.NoError(t, err)
	require.False(t, resumed.Interrupted)
	require.Empty(t, resumed.State.String(agent.KeyDraftResponse))
}

func TestApprovalIsCaseInsensitive(t *testing.T) {
	svc, _, _, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentComplex,
		Urgency: domain.UrgencyMedium,
		Topic:   "migration",
		Summary: "complex migration question",
	})
	ctx := context.Background()

	result, err := svc.Run(ctx, "s1", "Help me migrate my data", "frank")
	require.NoError(t, err)
	require.True(t, result.Interrupted)
	draft := result.State.String(agent.KeyDraftResponse)

	resumed, err := svc.Resume(ctx, "s1", "Approved")
	require.NoError(t, err)
	require.Equal(t, draft, resumed.State.String(agent.KeyDraftResponse))
}

func TestSearchFailureDegrades(t *testing.T) {
	svc, drafter, searcher, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentFeature,
		Urgency: domain.UrgencyLow,
		Topic:   "dark mode",
		Summary: "feature request",
	})
	searcher.err = errors.New("backend unreachable")

	result, err := svc.Run(context.Background(), "s1", "Please add dark mode", "gina")
	require.NoError(t, err)
	require.False(t, result.Interrupted)
	require.Len(t, drafter.lastReq.SearchResults, 1)
	require.Contains(t, drafter.lastReq.SearchResults[0], "Search temporarily unavailable")
}

func TestResumeWithoutPendingReview(t *testing.T) {
	svc, _, _, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentQuestion,
		Urgency: domain.UrgencyLow,
		Topic:   "docs",
		Summary: "question",
	})
	ctx := context.Background()

	_, err := svc.Resume(ctx, "never-seen", "approved")
	require.ErrorIs(t, err, workflow.ErrInvalidResumeState)

	// Completed threads cannot be resumed either.
	_, err = svc.Run(ctx, "s1", "Where are the docs?", "hank")
	require.NoError(t, err)
	_, err = svc.Resume(ctx, "s1", "approved")
	require.ErrorIs(t, err, workflow.ErrInvalidResumeState)

	_, err = svc.PendingReview(ctx, "s1")
	require.ErrorIs(t, err, workflow.ErrInvalidResumeState)
}

func TestCompletedThreadHandlesNextMessageFresh(t *testing.T) {
	svc, _, _, _ := newTestService(t, domain.Classification{
		Intent:  domain.IntentOther,
		Urgency: domain.UrgencyLow,
		Topic:   "chitchat",
		Summary: "greeting",
	})
	ctx := context.Background()

	first, err := svc.Run(ctx, "s1", "hello", "ivy")
	require.NoError(t, err)
	require.False(t, first.Interrupted)

	second, err := svc.Run(ctx, "s1", "thanks", "ivy")
	require.NoError(t, err)
	require.Equal(t, "thanks", second.State.String(agent.KeyMessageContent))
	require.Contains(t, second.State.String(agent.KeyDraftResponse), "thanks")
}
