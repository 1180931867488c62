package detail

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
)

func TestContentShowsLinkAndActor(t *testing.T) {
	m := New(keys.DefaultKeyMap(), "http://blog.local/", 100, 30)
	m.SetNotification(model.Notification{
		ID:      "n1",
		Type:    model.NotificationComment,
		Message: codec.Encode("Ada", "commented on", "Hello"),
		Actor:   &model.Actor{ID: "u2", Name: "Ada"},
		Target:  model.Target{PostID: "42", CommentID: "7"},
	})

	view := m.View()
	assert.Contains(t, view, "Ada")
	assert.Contains(t, view, "http://blog.local/posts/42#comments")
	assert.Contains(t, view, "unread")

	cur, ok := m.Current()
	require.True(t, ok)
	assert.Equal(t, "n1", cur.ID)
}

func TestContentWithoutActor(t *testing.T) {
	m := New(keys.DefaultKeyMap(), "http://blog.local", 100, 30)
	m.SetNotification(model.Notification{ID: "n2", Type: model.NotificationLike, Message: "plain text", IsRead: true})

	view := m.View()
	assert.Contains(t, view, "a former member")
	assert.Contains(t, view, "plain text")
}

func TestBackAndClear(t *testing.T) {
	m := New(keys.DefaultKeyMap(), "", 80, 20)
	m.SetNotification(model.Notification{ID: "n3"})

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.IsType(t, BackMsg{}, cmd())

	m.Clear()
	_, ok := m.Current()
	assert.False(t, ok)
	assert.Contains(t, m.View(), "No notification selected")
}
