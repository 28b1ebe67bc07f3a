package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTitle   = "New Chat"
	HistoryTitle   = "Chat Session"
	ImageOnlyTitle = "Image message"
	HandlePrefix   = "blob:"
	titleLimit     = 30
	titleEllipsis  = "..."
)

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// Message is a single entry of a conversation. Messages are values: a
// correction replaces the entry in its session instead of mutating it.
type Message struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"content"`
	IsUser    bool      `json:"is_user" db:"is_user"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	// Image is a transient handle reference ("blob:<id>") for locally attached
	// images, or a remote URL for messages loaded from history.
	Image string `json:"image,omitempty" db:"image"`
}

// NewID returns a time-ordered identifier, so ids created in sequence sort
// in creation order.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewUserMessage creates a message authored by the user
func NewUserMessage(text, image string) Message {
	return Message{
		ID:        NewID(),
		Text:      text,
		IsUser:    true,
		Timestamp: time.Now(),
		Image:     image,
	}
}

// NewBotMessage creates a message authored by the assistant
func NewBotMessage(text string) Message {
	return Message{
		ID:        NewID(),
		Text:      text,
		IsUser:    false,
		Timestamp: time.Now(),
	}
}

// Role maps the message author to its wire role.
func (m Message) Role() ChatRole {
	if m.IsUser {
		return ChatRoleUser
	}
	return ChatRoleAssistant
}

// HasLocalImage reports whether the image refers to a transient handle.
func (m Message) HasLocalImage() bool {
	return strings.HasPrefix(m.Image, HandlePrefix)
}
