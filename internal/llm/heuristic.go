package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkrenev/supportflow/internal/agent"
	"github.com/dkrenev/supportflow/internal/domain"
)

// Heuristic is a keyword-based classifier and template drafter. It keeps the
// service functional when no LLM is configured; quality is intentionally
// rudimentary.
type Heuristic struct{}

var (
	_ agent.Classifier = (*Heuristic)(nil)
	_ agent.Drafter    = (*Heuristic)(nil)
)

// NewHeuristic creates the fallback classifier/drafter.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

var intentKeywords = []struct {
	intent domain.Intent
	words  []string
}{
	{domain.IntentBilling, []string{"charge", "charged", "bill", "billing", "invoice", "refund", "payment", "subscription"}},
	{domain.IntentBug, []string{"bug", "crash", "error", "broken", "doesn't work", "does not work", "fails"}},
	{domain.IntentFeature, []string{"feature", "would be great", "please add", "support for", "wish"}},
	{domain.IntentQuestion, []string{"how do i", "how to", "what is", "where", "can i", "?"}},
}

// Classify implements agent.Classifier.
func (h *Heuristic) Classify(ctx context.Context, message, userName string) (domain.Classification, error) {
	lower := strings.ToLower(message)

	intent := domain.IntentOther
	for _, entry := range intentKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				intent = entry.intent
				break
			}
		}
		if intent != domain.IntentOther {
			break
		}
	}

	urgency := domain.UrgencyLow
	switch {
	case strings.Contains(lower, "urgent") || strings.Contains(lower, "asap") ||
		strings.Contains(lower, "immediately") || strings.Contains(lower, "right now"):
		urgency = domain.UrgencyCritical
	case strings.Contains(lower, "soon") || strings.Count(message, "!") >= 2:
		urgency = domain.UrgencyHigh
	case strings.Contains(message, "!"):
		urgency = domain.UrgencyMedium
	}

	summary := message
	if len(summary) > 120 {
		// Back up to a rune boundary so the cut never splits a multi-byte
		// character.
		cut := 120
		for cut > 0 && !utf8.RuneStart(summary[cut]) {
			cut--
		}
		summary = summary[:cut]
	}

	return domain.Classification{
		Intent:  intent,
		Urgency: urgency,
		Topic:   string(intent),
		Summary: summary,
	}, nil
}

// Draft implements agent.Drafter.
func (h *Heuristic) Draft(ctx context.Context, req agent.DraftRequest) (string, error) {
	var b strings.Builder
	b.WriteString("Thank you for reaching out. ")

	switch req.Intent {
	case domain.IntentBilling:
		b.WriteString("We understand billing issues are frustrating and we are looking into your account right away.")
	case domain.IntentBug:
		b.WriteString("We have recorded the problem you reported and our engineers will investigate.")
	case domain.IntentFeature:
		b.WriteString("We appreciate the suggestion and have passed it to our product team.")
	default:
		b.WriteString("Here is what we found for your request.")
	}

	if len(req.SearchResults) > 0 {
		b.WriteString("\n\nThis may help:\n")
		for _, result := range req.SearchResults {
			fmt.Fprintf(&b, "- %s\n", result)
		}
	}

	b.WriteString("\nIf you need anything else, just reply to this message.")
	return b.String(), nil
}
