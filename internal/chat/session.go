package chat

import (
	"strings"
	"time"
)

// Session represents a chat session
type Session struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewSession creates a new empty Session titled "New Chat"
func NewSession() *Session {
	return &Session{
		ID:        NewID(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: time.Now(),
	}
}

// Append adds msg to the end of the session. The first user message names the
// session; the title never changes after that. A timestamp earlier than the
// last message is clamped so timestamp order always equals insertion order.
func (s *Session) Append(msg Message) {
	if len(s.Messages) == 0 && msg.IsUser {
		s.Title = DeriveTitle(msg.Text)
	}
	if n := len(s.Messages); n > 0 {
		if last := s.Messages[n-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}
	s.Messages = append(s.Messages, msg)
}

// Clone returns a deep copy that shares nothing with s
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

// DeriveTitle builds a session title from the text of its first message.
func DeriveTitle(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ImageOnlyTitle
	}
	runes := []rune(text)
	if len(runes) <= titleLimit {
		return text
	}
	return strings.TrimSpace(string(runes[:titleLimit])) + titleEllipsis
}
