package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/session"
)

func conversationState() session.State {
	s := chat.NewSession()
	s.Append(chat.NewUserMessage("features?", ""))
	s.Append(chat.NewBotMessage("### Features\n\n1. **Display**: bright\n- Light frame"))
	return session.State{Current: s, History: []*chat.Session{s}, WidgetVisible: true}
}

func TestWidgetShowsConversation(t *testing.T) {
	r := NewRenderer()
	state := conversationState()
	state.Pending = true

	out := r.Widget(state, Input{Text: "next question", ImageName: "lens.png", Recording: true}, 60)
	assert.Contains(t, out, "Eyeconic Assistant")
	assert.Contains(t, out, "features?")
	assert.Contains(t, out, "Features")
	assert.NotContains(t, out, "###")
	assert.NotContains(t, out, "**")
	assert.Contains(t, out, "1. Display: bright")
	assert.Contains(t, out, "• Light frame")
	assert.Contains(t, out, "Thinking...")
	assert.Contains(t, out, "attached: lens.png")
	assert.Contains(t, out, "recording")
	assert.Contains(t, out, "> next question")
}

func TestWidgetShowsQuickPromptsWhenEmpty(t *testing.T) {
	r := NewRenderer()
	state := session.State{Current: chat.NewSession(), WidgetVisible: true}

	out := r.Widget(state, Input{QuickPrompts: []string{"How do I start?"}}, 60)
	assert.Contains(t, out, "New Chat")
	assert.Contains(t, out, "[1] How do I start?")
}

func TestFullPageShowsHistory(t *testing.T) {
	r := NewRenderer()
	state := conversationState()
	other := chat.NewSession()
	other.Title = "Battery"
	state.History = append(state.History, other)

	out := r.FullPage(state, Input{}, 120)
	assert.Contains(t, out, "> features? (2)")
	assert.Contains(t, out, "Battery (0)")
	assert.Contains(t, out, "Display")
}

func TestHistoryListEmpty(t *testing.T) {
	assert.Equal(t, "No previous chats", NewRenderer().HistoryList(nil, ""))
}

func TestUserImageMessage(t *testing.T) {
	m := chat.NewUserMessage("", chat.HandlePrefix+"1")
	out := NewRenderer().Message(m, 40)
	assert.Contains(t, out, "[image]")
}
