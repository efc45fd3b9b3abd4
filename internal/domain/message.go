package domain

// Message statuses returned by the chat API.
const (
	StatusSent         = "sent"
	StatusWaitingHuman = "waiting_human"
	StatusCompleted    = "completed"
	StatusError        = "error"
)

// ChatMessage is the wire shape of one chat message on the HTTP API.
type ChatMessage struct {
	ID             string          `json:"id"`
	Content        string          `json:"content"`
	Type           string          `json:"type"` // "user" or "assistant"
	Timestamp      int64           `json:"timestamp"`
	Status         string          `json:"status"`
	Classification *Classification `json:"classification,omitempty"`
}
