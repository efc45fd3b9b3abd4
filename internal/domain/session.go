package domain

import (
	"time"
)

// Session is the presentation-layer record for one chat session.
// It is a cache entry, not the source of truth: losing it loses only UI
// convenience, never workflow correctness (that lives in the checkpoint store).
type Session struct {
	SessionID      string    `json:"sessionId"`
	UserName       string    `json:"userName"`
	PausedForHuman bool      `json:"isPausedForHuman"`
	Typing         bool      `json:"isTyping"`
	CreationTime   time.Time `json:"creationTime"`
	LastAccessTime time.Time `json:"lastAccessTime"`
}

// ExpiredAt reports whether the session has passed either its sliding idle
// timeout or its absolute age cap at the given instant.
func (s *Session) ExpiredAt(now time.Time, idle, maxAge time.Duration) bool {
	if idle > 0 && now.Sub(s.LastAccessTime) > idle {
		return true
	}
	if maxAge > 0 && now.Sub(s.CreationTime) > maxAge {
		return true
	}
	return false
}
