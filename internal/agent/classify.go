package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkrenev/supportflow/internal/domain"
	"github.com/dkrenev/supportflow/internal/workflow"
)

// ErrClassificationMissing indicates a step that requires a classification ran
// before classify produced one. That is a graph-wiring error, not a runtime
// condition to recover from.
var ErrClassificationMissing = errors.New("classification missing from state")

// classifyNode classifies the incoming message and routes it:
// human review for billing or critical messages, documentation search for
// questions and feature requests, bug tracking for bugs, otherwise straight
// to drafting.
func classifyNode(classifier Classifier) workflow.NodeFunc {
	return func(ctx context.Context, state workflow.State) (*workflow.Command, error) {
		message := state.String(KeyMessageContent)
		userName := state.String(KeyUserName)

		classification, err := classifier.Classify(ctx, message, userName)
		if err != nil {
			return nil, fmt.Errorf("classify message: %w", err)
		}

		var target string
		switch {
		case classification.NeedsHumanReview():
			target = StepHumanReview
		case classification.Intent == domain.IntentQuestion || classification.Intent == domain.IntentFeature:
			target = StepSearchDocs
		case classification.Intent == domain.IntentBug:
			target = StepBugTracking
		default:
			target = StepDraft
		}

		return &workflow.Command{
			GoTo:   target,
			Update: workflow.State{KeyClassification: classification},
		}, nil
	}
}

// ClassificationFrom extracts the classification from state. Values read back
// from a JSON-serialized checkpoint arrive as a generic map and are decoded.
func ClassificationFrom(state workflow.State) (domain.Classification, bool) {
	switch v := state[KeyClassification].(type) {
	case domain.Classification:
		return v, true
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.Classification{}, false
		}
		var c domain.Classification
		if err := json.Unmarshal(data, &c); err != nil {
			return domain.Classification{}, false
		}
		return c, true
	}
	return domain.Classification{}, false
}
