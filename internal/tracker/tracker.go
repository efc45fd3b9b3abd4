// Package tracker provides the bug-tracking collaborator stub.
package tracker

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dkrenev/supportflow/internal/agent"
)

// StubTracker files tickets into the log only, generating ids in the shape a
// real tracker would.
type StubTracker struct{}

var _ agent.BugTracker = (*StubTracker)(nil)

// NewStub creates the stub bug tracker.
func NewStub() *StubTracker {
	return &StubTracker{}
}

// FileTicket implements agent.BugTracker.
func (t *StubTracker) FileTicket(ctx context.Context, req agent.TicketRequest) (string, error) {
	ticketID := "BUG-" + strings.ToUpper(uuid.NewString()[:8])
	slog.Info("Bug ticket filed",
		"ticket_id", ticketID,
		"topic", req.Topic,
		"reporter", req.Reporter)
	return ticketID, nil
}
