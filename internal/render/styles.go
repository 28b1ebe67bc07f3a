package render

import "github.com/charmbracelet/lipgloss"

var (
	Primary   = lipgloss.Color("#101F38")
	Accent    = lipgloss.Color("#8BC34A")
	Muted     = lipgloss.Color("#8a94a6")
	Border    = lipgloss.Color("#dce0e5")
	UserBg    = lipgloss.Color("#2196F3")
	Highlight = lipgloss.Color("#FFC107")
)

// Styles groups the styles shared by both surfaces.
type Styles struct {
	Frame     lipgloss.Style
	Header    lipgloss.Style
	Title     lipgloss.Style
	User      lipgloss.Style
	Bot       lipgloss.Style
	Heading   lipgloss.Style
	SubLabel  lipgloss.Style
	Bold      lipgloss.Style
	Meta      lipgloss.Style
	Input     lipgloss.Style
	Sidebar   lipgloss.Style
	Selected  lipgloss.Style
	Recording lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Frame:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Border),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(Accent),
		Title:     lipgloss.NewStyle().Foreground(Muted),
		User:      lipgloss.NewStyle().Foreground(UserBg).Align(lipgloss.Right),
		Bot:       lipgloss.NewStyle(),
		Heading:   lipgloss.NewStyle().Bold(true).Foreground(Accent),
		SubLabel:  lipgloss.NewStyle().Bold(true).Italic(true),
		Bold:      lipgloss.NewStyle().Bold(true),
		Meta:      lipgloss.NewStyle().Foreground(Muted).Italic(true),
		Input:     lipgloss.NewStyle().BorderTop(true).BorderStyle(lipgloss.NormalBorder()).BorderForeground(Border),
		Sidebar:   lipgloss.NewStyle().BorderRight(true).BorderStyle(lipgloss.NormalBorder()).BorderForeground(Border).PaddingRight(1),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(Highlight),
		Recording: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935")),
	}
}
