package client

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gennadis/chatengine/internal/chat"
)

type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse carries the reply under one of several field names depending
// on the backend version.
type ChatResponse struct {
	Response string `json:"response"`
	Message  string `json:"message"`
	Content  string `json:"content"`
}

func (r ChatResponse) Text() string {
	for _, s := range []string{r.Response, r.Message, r.Content} {
		if s != "" {
			return s
		}
	}
	return ""
}

type TranscriptionResponse struct {
	Transcription string `json:"transcription"`
	Text          string `json:"text"`
}

func (r TranscriptionResponse) Result() string {
	if r.Transcription != "" {
		return r.Transcription
	}
	return r.Text
}

type HistoryMessage struct {
	ID        FlexID   `json:"id"`
	Content   string   `json:"content"`
	Text      string   `json:"text"`
	Role      string   `json:"role"`
	Timestamp FlexTime `json:"timestamp"`
	Image     string   `json:"image"`
}

type HistorySession struct {
	ID        FlexID           `json:"id"`
	Title     string           `json:"title"`
	CreatedAt FlexTime         `json:"created_at"`
	Messages  []HistoryMessage `json:"messages"`
}

// HistoryResponse accepts both a paginated {"results": [...]} body and a bare array.
type HistoryResponse struct {
	Results []HistorySession
}

func (h *HistoryResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &h.Results)
	}
	var page struct {
		Results []HistorySession `json:"results"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		return err
	}
	h.Results = page.Results
	return nil
}

// Sessions converts the payload into domain sessions, preserving order.
func (h HistoryResponse) Sessions() []*chat.Session {
	sessions := make([]*chat.Session, 0, len(h.Results))
	for _, item := range h.Results {
		title := item.Title
		if title == "" {
			title = chat.HistoryTitle
		}
		s := &chat.Session{
			ID:        string(item.ID),
			Title:     title,
			Messages:  make([]chat.Message, 0, len(item.Messages)),
			CreatedAt: time.Time(item.CreatedAt),
		}
		for _, m := range item.Messages {
			text := m.Content
			if text == "" {
				text = m.Text
			}
			s.Messages = append(s.Messages, chat.Message{
				ID:        string(m.ID),
				Text:      text,
				IsUser:    m.Role == string(chat.ChatRoleUser),
				Timestamp: time.Time(m.Timestamp),
				Image:     m.Image,
			})
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// FlexID decodes identifiers sent either as JSON numbers or strings.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexID(n.String())
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FlexTime decodes the timestamp formats seen in history payloads. Unknown
// formats and unix seconds are tolerated; unparseable values decode as zero.
type FlexTime time.Time

func (t *FlexTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*t = FlexTime(time.Unix(secs, 0))
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			*t = FlexTime(parsed)
			return nil
		}
	}
	return nil
}

type ApiErrorResponse struct {
	Error   string `json:"error"`
	Detail  string `json:"detail"`
	Message string `json:"message"`
}
