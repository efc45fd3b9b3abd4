package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dkrenev/supportflow/internal/workflow"
)

// searchNode queries the documentation backend with the classified intent and
// topic. A search failure degrades to a synthetic result instead of aborting
// the run; the stored value fully replaces any prior results.
func searchNode(searcher DocSearcher) workflow.NodeFunc {
	return func(ctx context.Context, state workflow.State) (*workflow.Command, error) {
		var query string
		if classification, ok := ClassificationFrom(state); ok {
			query = strings.TrimSpace(string(classification.Intent) + " " + classification.Topic)
		}

		results, err := searcher.Search(ctx, query)
		if err != nil {
			slog.Error("Documentation search failed", "query", query, "error", err)
			results = []string{"Search temporarily unavailable: " + err.Error()}
		}

		return &workflow.Command{
			GoTo:   StepDraft,
			Update: workflow.State{KeySearchResults: results},
		}, nil
	}
}
