package history

import (
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
)

func page(n, total int) *model.HistoryPage {
	p := &model.HistoryPage{Page: n, Limit: 10, Total: total, TotalPages: model.TotalPages(total, 10)}
	for i := (n - 1) * 10; i < min(n*10, total); i++ {
		p.Items = append(p.Items, model.Notification{ID: fmt.Sprintf("h%d", i), Type: model.NotificationLike, Message: "older"})
	}
	return p
}

func keyMsg(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPaging(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)

	_, cmd := m.Update(keyMsg("n"))
	assert.Nil(t, cmd, "nothing to page before the first load")

	m.SetPage(page(1, 25))
	_, cmd = m.Update(keyMsg("p"))
	assert.Nil(t, cmd)

	_, cmd = m.Update(keyMsg("n"))
	require.NotNil(t, cmd)
	assert.Equal(t, PageMsg{Page: 2}, cmd())

	m.SetLoading(true)
	_, cmd = m.Update(keyMsg("n"))
	assert.Nil(t, cmd, "one request at a time")

	m.SetPage(page(3, 25))
	assert.Equal(t, 3, m.Page())
	_, cmd = m.Update(keyMsg("n"))
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	require.NotNil(t, cmd)
	assert.Equal(t, PageMsg{Page: 2}, cmd())
}

func TestOpenAndMarkRead(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	p := page(1, 2)
	p.Items[1].IsRead = true
	m.SetPage(p)

	_, cmd := m.Update(keyMsg("enter"))
	require.NotNil(t, cmd)
	assert.Equal(t, OpenMsg{Notification: p.Items[0]}, cmd())

	_, cmd = m.Update(keyMsg("m"))
	require.NotNil(t, cmd)
	assert.Equal(t, MarkReadMsg{ID: "h0"}, cmd())

	m.list.Select(1)
	_, cmd = m.Update(keyMsg("m"))
	assert.Nil(t, cmd)
}

func TestSetPageKeepsCursorOnSamePage(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	m.SetPage(page(1, 5))
	m.list.Select(3)

	updated := page(1, 5)
	updated.Items[3].IsRead = true
	m.SetPage(updated)
	n, ok := m.Selected()
	require.True(t, ok)
	assert.Equal(t, "h3", n.ID)

	m.SetPage(page(2, 15))
	n, _ = m.Selected()
	assert.Equal(t, "h10", n.ID)
}

func TestView(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 20)
	assert.Contains(t, m.View(), "Loading history...")

	m.SetPage(page(1, 0))
	assert.Contains(t, m.View(), "No notifications yet.")
	assert.Contains(t, m.View(), "page 1 of 1 · 0 notifications")

	m.SetPage(page(2, 21))
	assert.Contains(t, m.View(), "page 2 of 3 · 21 notifications")
}

func TestPageLabel(t *testing.T) {
	assert.Empty(t, PageLabel(nil))
	assert.Equal(t, "page 1 of 1 · 1 notification", PageLabel(page(1, 1)))
}
