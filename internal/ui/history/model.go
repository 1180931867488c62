// Package history pages through a member's full notification history.
package history

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/theme"
	"github.com/nhle/blogbell/internal/ui/inbox"
)

// PageMsg asks the parent to load a page.
type PageMsg struct {
	Page int
}

// OpenMsg is sent when the member opens a notification from history.
type OpenMsg struct {
	Notification model.Notification
}

// MarkReadMsg asks the parent to acknowledge one archived notification.
type MarkReadMsg struct {
	ID string
}

// Model shows one page of history.
type Model struct {
	list    list.Model
	keys    *keys.KeyMap
	page    *model.HistoryPage
	loading bool
	width   int
	height  int
}

// New creates an empty history view.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, inbox.ItemDelegate{}, width, listHeight(height))
	l.Title = "History"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	// Server pages replace the list's own paging.
	l.KeyMap.NextPage.SetEnabled(false)
	l.KeyMap.PrevPage.SetEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.KeyMap.ShowFullHelp.SetEnabled(false)

	return Model{list: l, keys: k, width: width, height: height}
}

func listHeight(height int) int {
	return max(height-2, 0)
}

// SetLoading marks a page request in flight.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
}

// SetPage shows p, keeping the cursor on the same notification when it
// is still on the page.
func (m *Model) SetPage(p *model.HistoryPage) tea.Cmd {
	m.loading = false

	selected := ""
	if n, ok := m.Selected(); ok {
		selected = n.ID
	}
	if m.page != nil && p != nil && m.page.Page != p.Page {
		selected = ""
	}
	m.page = p

	var items []model.Notification
	if p != nil {
		items = p.Items
	}
	rows := make([]list.Item, len(items))
	cursor := 0
	for i, n := range items {
		rows[i] = inbox.Item{Notification: n}
		if n.ID == selected {
			cursor = i
		}
	}

	cmd := m.list.SetItems(rows)
	m.list.Select(cursor)
	return cmd
}

// Page returns the page number shown, or 0 before the first load.
func (m Model) Page() int {
	if m.page == nil {
		return 0
	}
	return m.page.Page
}

// Selected returns the notification under the cursor.
func (m Model) Selected() (model.Notification, bool) {
	it, ok := m.list.SelectedItem().(inbox.Item)
	if !ok {
		return model.Notification{}, false
	}
	return it.Notification, true
}

// Update handles messages for the history view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.NextPage):
			if m.page == nil || m.loading || m.page.Page >= m.page.TotalPages {
				return m, nil
			}
			return m, request(m.page.Page + 1)

		case key.Matches(msg, m.keys.PrevPage):
			if m.page == nil || m.loading || m.page.Page <= 1 {
				return m, nil
			}
			return m, request(m.page.Page - 1)

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

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func request(page int) tea.Cmd {
	return func() tea.Msg {
		return PageMsg{Page: page}
	}
}

// PageLabel describes the position in history, e.g. "page 2 of 3 · 21 notifications".
func PageLabel(p *model.HistoryPage) string {
	if p == nil {
		return ""
	}
	noun := "notifications"
	if p.Total == 1 {
		noun = "notification"
	}
	return fmt.Sprintf("page %d of %d · %d %s", p.Page, max(p.TotalPages, 1), p.Total, noun)
}

// View renders the page and its position.
func (m Model) View() string {
	footer := theme.DimmedStyle.Render(PageLabel(m.page))
	if m.loading {
		footer = theme.DimmedStyle.Render("loading...")
	}

	if len(m.list.Items()) == 0 {
		style := lipgloss.NewStyle().
			Width(m.width).
			Height(listHeight(m.height)).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)

		text := "No notifications yet."
		switch {
		case m.page == nil:
			text = "Loading history..."
		case m.page.Page > 1:
			text = "Nothing on this page."
		}
		return lipgloss.JoinVertical(lipgloss.Left, style.Render(text), "", footer)
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), "", footer)
}

// SetSize updates the dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, listHeight(height))
}
