// Package inbox renders the notification panel.
package inbox

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/theme"
)

// OpenMsg is sent when the member opens a notification.
type OpenMsg struct {
	Notification model.Notification
}

// MarkReadMsg asks the parent to acknowledge one notification.
type MarkReadMsg struct {
	ID string
}

// Model is the notification list view.
type Model struct {
	list     list.Model
	keys     *keys.KeyMap
	signedIn bool
	loading  bool
	width    int
	height   int
}

// New creates an empty notification list.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	// Quitting and help are owned by the application.
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)

	return Model{
		list:   l,
		keys:   k,
		width:  width,
		height: height,
	}
}

// SetItems replaces the rows, keeping the cursor on the same notification
// when it is still listed.
func (m *Model) SetItems(items []model.Notification, signedIn, loading bool) tea.Cmd {
	m.signedIn = signedIn
	m.loading = loading

	selected := ""
	if it, ok := m.list.SelectedItem().(Item); ok {
		selected = it.Notification.ID
	}

	rows := make([]list.Item, len(items))
	cursor := 0
	for i, n := range items {
		rows[i] = Item{Notification: n}
		if n.ID == selected {
			cursor = i
		}
	}

	cmd := m.list.SetItems(rows)
	m.list.Select(cursor)
	return cmd
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Update handles messages for the list view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Open):
			n, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return OpenMsg{Notification: n}
			}

		case key.Matches(msg, m.keys.MarkRead):
			n, ok := m.Selected()
			if !ok || n.IsRead {
				return m, nil
			}
			return m, func() tea.Msg {
				return MarkReadMsg{ID: n.ID}
			}
		}
	}

	// Navigation keys (up/down/pgup/pgdn) go to the list.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the notification list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return m.renderEmptyState()
	}
	return m.list.View()
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case !m.signedIn:
		return style.Render("Signed out.")
	case m.loading:
		return style.Render("Loading notifications...")
	default:
		return style.Render("No notifications yet.")
	}
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
