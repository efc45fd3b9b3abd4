package agent

import (
	"context"
	"fmt"

	"github.com/dkrenev/supportflow/internal/workflow"
)

// draftNode composes a reply from the message, its classification and any
// search results. High or critical urgency and complex requests route the
// draft to human review instead of finishing; the decision uses the
// classification captured before drafting, never a re-classification.
func draftNode(drafter Drafter) workflow.NodeFunc {
	return func(ctx context.Context, state workflow.State) (*workflow.Command, error) {
		classification, ok := ClassificationFrom(state)
		if !ok {
			return nil, fmt.Errorf("draft step: %w", ErrClassificationMissing)
		}

		req := DraftRequest{
			MessageContent: state.String(KeyMessageContent),
			Intent:         classification.Intent,
			Urgency:        classification.Urgency,
			SearchResults:  state.StringSlice(KeySearchResults),
		}
		if history := state.StringMap(KeyCustomerHistory); history != nil {
			req.CustomerTier = history["tier"]
		}

		response, err := drafter.Draft(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("draft response: %w", err)
		}

		target := workflow.End
		if classification.NeedsDraftReview() {
			target = StepHumanReview
		}

		return &workflow.Command{
			GoTo:   target,
			Update: workflow.State{KeyDraftResponse: response},
		}, nil
	}
}
