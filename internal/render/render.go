// Package render draws the chat surfaces as terminal text.
//
// Both surfaces read the same session.State; nothing here holds chat state.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gennadis/chatengine/internal/chat"
	"github.com/gennadis/chatengine/internal/format"
	"github.com/gennadis/chatengine/internal/session"
)

const (
	assistantName  = "Eyeconic Assistant"
	thinkingText   = "Thinking..."
	emptyHistory   = "No previous chats"
	sidebarWidth   = 28
	minMessageArea = 16
)

// Input is what a surface shows in its compose area.
type Input struct {
	Text         string
	ImageName    string
	Recording    bool
	QuickPrompts []string
}

// Renderer draws surfaces with a fixed set of styles.
type Renderer struct {
	styles Styles
}

func NewRenderer() *Renderer {
	return &Renderer{styles: DefaultStyles()}
}

// Widget draws the compact surface: header, messages and compose area.
func (r *Renderer) Widget(state session.State, in Input, width int) string {
	inner := max(width-2, minMessageArea)
	parts := []string{r.header(state.Current, inner)}
	parts = append(parts, r.conversation(state, in, inner)...)
	parts = append(parts, r.input(in, inner))
	return r.styles.Frame.Width(inner).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// FullPage draws the history sidebar next to the conversation.
func (r *Renderer) FullPage(state session.State, in Input, width int) string {
	currentID := ""
	if state.Current != nil {
		currentID = state.Current.ID
	}
	sidebar := r.styles.Sidebar.Width(sidebarWidth).Render(r.HistoryList(state.History, currentID))

	inner := max(width-sidebarWidth-4, minMessageArea)
	parts := []string{r.header(state.Current, inner)}
	parts = append(parts, r.conversation(state, in, inner)...)
	parts = append(parts, r.input(in, inner))
	main := lipgloss.NewStyle().Width(inner).PaddingLeft(1).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))

	return r.styles.Frame.Render(lipgloss.JoinHorizontal(lipgloss.Top, sidebar, main))
}

// HistoryList lists sessions most recent first, marking the current one.
func (r *Renderer) HistoryList(sessions []*chat.Session, currentID string) string {
	if len(sessions) == 0 {
		return r.styles.Meta.Render(emptyHistory)
	}
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		line := fmt.Sprintf("%s (%d)", s.Title, len(s.Messages))
		if s.ID == currentID {
			lines = append(lines, r.styles.Selected.Render("> "+line))
			continue
		}
		lines = append(lines, "  "+line)
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) header(current *chat.Session, width int) string {
	title := chat.DefaultTitle
	if current != nil {
		title = current.Title
	}
	return lipgloss.NewStyle().Width(width).Render(
		r.styles.Header.Render(assistantName) + "\n" + r.styles.Title.Render(title),
	)
}

func (r *Renderer) conversation(state session.State, in Input, width int) []string {
	var parts []string
	if state.Current == nil || len(state.Current.Messages) == 0 {
		for i, prompt := range in.QuickPrompts {
			parts = append(parts, r.styles.Meta.Render(fmt.Sprintf("[%d] %s", i+1, prompt)))
		}
		return parts
	}
	for _, m := range state.Current.Messages {
		parts = append(parts, r.Message(m, width))
	}
	if state.Pending {
		parts = append(parts, r.styles.Meta.Render(thinkingText))
	}
	return parts
}

// Message draws one message. Bot replies are laid out from their blocks.
func (r *Renderer) Message(m chat.Message, width int) string {
	stamp := r.styles.Meta.Render(m.Timestamp.Format("15:04"))
	if m.IsUser {
		body := m.Text
		if m.Image != "" {
			body = strings.TrimSpace("[image] " + body)
		}
		return r.styles.User.Width(width).Render(body + "\n" + stamp)
	}

	lines := make([]string, 0, 4)
	for _, b := range format.Format(m.Text) {
		lines = append(lines, r.block(b))
	}
	return r.styles.Bot.Width(width).Render(strings.Join(lines, "\n") + "\n" + stamp)
}

func (r *Renderer) block(b format.Block) string {
	text := r.spans(b.Spans)
	switch b.Kind {
	case format.Heading:
		return r.styles.Heading.Render(b.Text())
	case format.OrderedItem:
		return b.Number + ". " + text
	case format.BulletItem:
		return "• " + text
	case format.SubLabel:
		return r.styles.SubLabel.Render(b.Text())
	default:
		return text
	}
}

func (r *Renderer) spans(spans []format.Span) string {
	var sb strings.Builder
	for _, s := range spans {
		if s.Bold {
			sb.WriteString(r.styles.Bold.Render(s.Text))
			continue
		}
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func (r *Renderer) input(in Input, width int) string {
	var lines []string
	if in.ImageName != "" {
		lines = append(lines, r.styles.Meta.Render("attached: "+in.ImageName))
	}
	if in.Recording {
		lines = append(lines, r.styles.Recording.Render("● recording"))
	}
	lines = append(lines, "> "+in.Text)
	return r.styles.Input.Width(width).Render(strings.Join(lines, "\n"))
}
