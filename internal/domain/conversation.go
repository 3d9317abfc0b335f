package domain

import "time"

// Role tags who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn of a conversation. Messages are immutable once
// created; their position within a session is the only ordering.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-authored message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-authored message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Session is one persisted conversation. ID is empty until the session has
// been persisted for the first time.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// IsNew reports whether the session has never been persisted.
func (s Session) IsNew() bool {
	return s.ID == ""
}

// Clone returns a copy that does not share its message slice.
func (s Session) Clone() Session {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	return out
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
}

// Summary derives the listing view of s.
func (s Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		Preview:      s.Preview,
		Timestamp:    s.Timestamp,
		MessageCount: len(s.Messages),
	}
}
