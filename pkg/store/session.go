package store

import "time"

// Turn is one question/answer exchange kept in working memory
type Turn struct {
	Role    string `json:"role"` // "user" | "assistant"
	Content string `json:"content"`
}

// Session is the in-memory working state of an active conversation.
// The durable history lives in the database; this holds only what the
// workflow needs per request without a round trip.
type Session struct {
	ID     string `json:"id"` // ChatSessionID
	UserID string `json:"user_id"`

	// Recent turns, newest last, trimmed to HistoryLimit
	History []Turn `json:"history"`

	// Metadata from the last completed invocation
	LastQuery  string `json:"last_query"`
	LastIntent string `json:"last_intent"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryLimit bounds how many turns a session keeps in memory
const HistoryLimit = 12

// AppendTurn records one exchange and trims the window
func (s *Session) AppendTurn(role, content string) {
	s.History = append(s.History, Turn{Role: role, Content: content})
	if len(s.History) > HistoryLimit {
		s.History = s.History[len(s.History)-HistoryLimit:]
	}
	s.UpdatedAt = time.Now()
}
