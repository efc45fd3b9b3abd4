// Package domain contains core domain types for the supportflow application.
package domain

// Intent is the classified purpose of a customer message.
type Intent string

// Intents recognized by the classifier.
const (
	IntentQuestion Intent = "QUESTION"
	IntentBug      Intent = "BUG"
	IntentFeature  Intent = "FEATURE"
	IntentBilling  Intent = "BILLING"
	IntentComplex  Intent = "COMPLEX"
	IntentOther    Intent = "OTHER"
)

// Urgency is the classified urgency of a customer message.
type Urgency string

// Urgency levels recognized by the classifier.
const (
	UrgencyLow      Urgency = "LOW"
	UrgencyMedium   Urgency = "MEDIUM"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Classification is the immutable result of classifying one customer message.
type Classification struct {
	Intent  Intent  `json:"intent"`
	Urgency Urgency `json:"urgency"`
	Topic   string  `json:"topic"`
	Summary string  `json:"summary"`
}

// NeedsHumanReview reports whether the message must be escalated to a human
// before any automated handling.
func (c Classification) NeedsHumanReview() bool {
	return c.Intent == IntentBilling || c.Urgency == UrgencyCritical
}

// NeedsDraftReview reports whether a drafted response must be approved by a
// human before it is sent.
func (c Classification) NeedsDraftReview() bool {
	return c.Urgency == UrgencyHigh || c.Urgency == UrgencyCritical || c.Intent == IntentComplex
}
