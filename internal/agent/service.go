package agent

import (
	"context"
	"fmt"

	"github.com/dkrenev/supportflow/internal/domain"
	"github.com/dkrenev/supportflow/internal/workflow"
)

// Collaborators are the external systems the support graph talks to.
type Collaborators struct {
	Classifier Classifier
	Drafter    Drafter
	Searcher   DocSearcher
	Tracker    BugTracker
}

// Service runs the customer-support workflow over a checkpoint store.
type Service struct {
	exec *workflow.Executor
}

// Schema returns the state schema of the support graph. searchResults is
// declared replace-on-write: a write fully replaces the prior value,
// concurrent partial updates are not supported. customerHistory entries merge
// so later lookups extend earlier ones.
func Schema() *workflow.StateSchema {
	return workflow.NewStateSchema().
		AddField(KeySearchResults, workflow.StateField{Reducer: workflow.ReplaceReducer}).
		AddField(KeyCustomerHistory, workflow.StateField{Reducer: workflow.MergeStringMapReducer})
}

// NewService builds the support graph and its executor. Execution pauses
// before humanReview for an external decision.
func NewService(cols Collaborators, cpStore workflow.CheckpointStore, opts ...workflow.ExecutorOption) (*Service, error) {
	graph, err := workflow.NewGraphBuilder().
		AddNode(StepClassify, classifyNode(cols.Classifier),
			StepHumanReview, StepSearchDocs, StepBugTracking, StepDraft).
		AddNode(StepSearchDocs, searchNode(cols.Searcher), StepDraft).
		AddNode(StepBugTracking, bugTrackingNode(cols.Tracker), StepDraft).
		AddNode(StepDraft, draftNode(cols.Drafter), StepHumanReview, workflow.End).
		AddNode(StepHumanReview, humanReviewNode(), workflow.End).
		SetEntryPoint(StepClassify).
		InterruptBefore(StepHumanReview).
		Compile()
	if err != nil {
		return nil, fmt.Errorf("build support graph: %w", err)
	}

	return &Service{
		exec: workflow.NewExecutor(graph, cpStore, Schema(), opts...),
	}, nil
}

// Run processes one inbound customer message on the given thread.
func (s *Service) Run(ctx context.Context, threadID, message, userName string) (*workflow.RunResult, error) {
	initial := workflow.State{
		KeyMessageContent: message,
		KeyUserName:       userName,
	}
	return s.exec.Run(ctx, threadID, initial)
}

// Resume injects the human decision into the paused thread and resumes it.
func (s *Service) Resume(ctx context.Context, threadID, feedback string) (*workflow.RunResult, error) {
	if _, err := s.exec.UpdateState(ctx, threadID, workflow.State{KeyHumanDecision: feedback}); err != nil {
		if err == workflow.ErrNoCheckpoint {
			return nil, workflow.ErrInvalidResumeState
		}
		return nil, fmt.Errorf("inject human decision: %w", err)
	}
	return s.exec.Resume(ctx, threadID)
}

// IsInterrupted reports whether the thread is paused awaiting a human decision.
func (s *Service) IsInterrupted(ctx context.Context, threadID string) (bool, error) {
	return s.exec.IsInterrupted(ctx, threadID)
}

// InterruptPayload describes a pending human review for presentation to a
// reviewer.
type InterruptPayload struct {
	MessageContext string         `json:"messageContext"`
	DraftResponse  string         `json:"draftResponse"`
	Urgency        domain.Urgency `json:"urgency"`
	Intent         string         `json:"intent"`
	Action         string         `json:"action"`
}

// PendingReview returns the payload of the pending human review without
// mutating state. Fails with workflow.ErrInvalidResumeState when the thread
// is not paused at humanReview.
func (s *Service) PendingReview(ctx context.Context, threadID string) (*InterruptPayload, error) {
	cp, err := s.exec.Snapshot(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil || cp.Done() || cp.NextNode != StepHumanReview {
		return nil, workflow.ErrInvalidResumeState
	}

	payload := &InterruptPayload{
		MessageContext: cp.State.String(KeyMessageContent),
		DraftResponse:  cp.State.String(KeyDraftResponse),
		Urgency:        domain.UrgencyMedium,
		Intent:         "unknown",
		Action:         "Please review and approve/edit this response",
	}
	if classification, ok := ClassificationFrom(cp.State); ok {
		payload.Urgency = classification.Urgency
		payload.Intent = string(classification.Intent)
	}
	return payload, nil
}

// Snapshot exposes the thread's live checkpoint for read-only inspection.
func (s *Service) Snapshot(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	return s.exec.Snapshot(ctx, threadID)
}
