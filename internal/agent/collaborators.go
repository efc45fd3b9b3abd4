package agent

import (
	"context"

	"github.com/dkrenev/supportflow/internal/domain"
)

// Classifier classifies one customer message.
type Classifier interface {
	Classify(ctx context.Context, message, userName string) (domain.Classification, error)
}

// DraftRequest carries everything the drafter needs to compose a reply.
type DraftRequest struct {
	MessageContent string
	Intent         domain.Intent
	Urgency        domain.Urgency
	SearchResults  []string
	CustomerTier   string
}

// Drafter composes a reply to the customer.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// DocSearcher queries the documentation backend. Timeouts and retries are the
// implementation's responsibility; a returned error surfaces as a degraded
// search result, never as a failed run.
type DocSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// TicketRequest describes a bug report extracted from a customer message.
type TicketRequest struct {
	Summary  string
	Topic    string
	Reporter string
}

// BugTracker files tickets with the bug-tracking system.
type BugTracker interface {
	FileTicket(ctx context.Context, req TicketRequest) (string, error)
}
