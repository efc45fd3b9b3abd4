package agent

import (
	"context"
	"strings"

	"github.com/dkrenev/supportflow/internal/workflow"
)

// humanReviewNode applies the human decision supplied while the thread was
// paused: "approved" keeps the draft, anything else discards it. Always
// terminal.
func humanReviewNode() workflow.NodeFunc {
	return func(ctx context.Context, state workflow.State) (*workflow.Command, error) {
		update := workflow.State{KeyDraftResponse: ""}
		if strings.EqualFold(state.String(KeyHumanDecision), DecisionApproved) {
			update[KeyDraftResponse] = state.String(KeyDraftResponse)
		}

		return &workflow.Command{
			GoTo:   workflow.End,
			Update: update,
		}, nil
	}
}
