package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/blogbell/internal/theme"
)

// Layout manages the header / content / status bar split of the terminal.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height left for the active view.
func (l Layout) ContentHeight() int {
	return max(l.Height-l.HeaderHeight-l.StatusBarHeight, 0)
}

// Badges summarizes what the header shows on its right side.
type Badges struct {
	SignedIn bool
	Unread   int
	Live     bool
	Loading  bool
}

// RenderHeader renders the title on the left and the unread count and
// connection state on the right.
func (l Layout) RenderHeader(title string, b Badges) string {
	titleRendered := theme.HeaderStyle.Render(title)

	var right []string
	if b.SignedIn {
		if b.Loading {
			right = append(right, theme.HeaderStyle.Render("syncing"))
		}
		if b.Unread > 0 {
			right = append(right, theme.UnreadBadgeStyle.Render(UnreadLabel(b.Unread)))
		}
		label := "offline"
		if b.Live {
			label = "live"
		}
		right = append(right, theme.ConnectionStyle(b.Live).
			Background(theme.HeaderStyle.GetBackground()).
			Render("● "+label))
	} else {
		right = append(right, theme.HeaderStyle.Render("signed out"))
	}
	rightRendered := lipgloss.JoinHorizontal(lipgloss.Top, right...)

	gap := max(l.Width-lipgloss.Width(titleRendered)-lipgloss.Width(rightRendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, filler, rightRendered)
}

// UnreadLabel formats the unread badge, capping large counts.
func UnreadLabel(n int) string {
	if n > 99 {
		return "99+ new"
	}
	return fmt.Sprintf("%d new", n)
}

// RenderStatusBar renders the bottom bar. A non-empty notice takes the
// place of the key hints.
func (l Layout) RenderStatusBar(hints, notice string) string {
	style := theme.StatusBarStyle
	text := hints
	if notice != "" {
		style = theme.NoticeStyle
		text = notice
	}

	rendered := style.Render(text)
	gap := max(l.Width-lipgloss.Width(rendered), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
