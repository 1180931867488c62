package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/theme"
)

// BackMsg signals the parent to navigate back to the list view.
type BackMsg struct{}

// Model shows one notification in full.
type Model struct {
	notification *model.Notification
	server       string
	viewport     viewport.Model
	keys         *keys.KeyMap
	width        int
	height       int
}

// New creates a detail view. server is prefixed to click-through links.
func New(keys *keys.KeyMap, server string, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		server:   strings.TrimRight(server, "/"),
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg {
			return BackMsg{}
		}
	}

	// Scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.notification == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No notification selected")
	}
	return m.viewport.View()
}

// Current returns the displayed notification.
func (m Model) Current() (model.Notification, bool) {
	if m.notification == nil {
		return model.Notification{}, false
	}
	return *m.notification, true
}

func (m Model) renderContent() string {
	n := m.notification
	if n == nil {
		return ""
	}

	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(codec.Render(n.Message)))

	state := "unread"
	if n.IsRead {
		state = "read"
	}
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		theme.TypeStyle(n.Type).Render(strings.ToUpper(string(n.Type))),
		"  ",
		theme.DimmedStyle.Render(state),
	))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)
	row := func(label, value string) {
		sections = append(sections, fmt.Sprintf("%-9s %s",
			metaStyle.Render(label+":"), valStyle.Render(value)))
	}

	if n.Actor != nil {
		row("From", n.Actor.Name)
	} else {
		row("From", "a former member")
	}
	if !n.CreatedAt.IsZero() {
		row("When", fmt.Sprintf("%s (%s)",
			n.CreatedAt.Local().Format("2006-01-02 15:04"), humanize.Time(n.CreatedAt)))
	}
	if link := n.Link(); link != "" {
		row("Open", m.server+link)
	}

	if msg, err := codec.Decode(n.Message); err == nil {
		sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
		sections = append(sections, "", sepStyle.Render(strings.Repeat("─", min(max(m.width-4, 0), 80))), "")
		row("Post", msg.Title)
		row("Action", msg.Action)
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetNotification updates the notification being displayed.
func (m *Model) SetNotification(n model.Notification) {
	m.notification = &n
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// Clear drops the displayed notification.
func (m *Model) Clear() {
	m.notification = nil
	m.viewport.SetContent("")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	if m.notification != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
