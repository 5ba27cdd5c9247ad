package domain

import "time"

// Session is the server-side record behind a session cookie.
// A zero AccountID means the session is anonymous; a zero ConversationID
// means no conversation has been bound yet.
type Session struct {
	Token          string
	AccountID      int64
	ConversationID int64
	Transcript     string
	Initialized    bool
	CreatedAt      time.Time
	LastSeenAt     time.Time
}

// IsAuthenticated reports whether an account is bound to the session.
func (s *Session) IsAuthenticated() bool {
	return s.AccountID != 0
}

// HasConversation reports whether a persisted conversation is bound.
func (s *Session) HasConversation() bool {
	return s.ConversationID != 0
}

// Expired reports whether the session has been idle for longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastSeenAt) > ttl
}
