package agent

import (
	"context"
	"fmt"

	"github.com/dkrenev/supportflow/internal/workflow"
)

// bugTrackingNode files a ticket for a bug report and records a note the
// draft step can cite.
func bugTrackingNode(tracker BugTracker) workflow.NodeFunc {
	return func(ctx context.Context, state workflow.State) (*workflow.Command, error) {
		req := TicketRequest{
			Summary:  state.String(KeyMessageContent),
			Reporter: state.String(KeyUserName),
		}
		if classification, ok := ClassificationFrom(state); ok {
			req.Summary = classification.Summary
			req.Topic = classification.Topic
		}

		ticketID, err := tracker.FileTicket(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("file bug ticket: %w", err)
		}

		return &workflow.Command{
			GoTo: StepDraft,
			Update: workflow.State{
				KeySearchResults: []string{fmt.Sprintf("Bug ticket %s created", ticketID)},
			},
		}, nil
	}
}
