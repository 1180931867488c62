package ui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
)

func TestUnreadLabel(t *testing.T) {
	assert.Equal(t, "1 new", UnreadLabel(1))
	assert.Equal(t, "99 new", UnreadLabel(99))
	assert.Equal(t, "99+ new", UnreadLabel(100))
}

func TestRenderHeader(t *testing.T) {
	l := NewLayout(80, 24)

	t.Run("signed in and live", func(t *testing.T) {
		out := l.RenderHeader("blogbell", Badges{SignedIn: true, Unread: 3, Live: true})
		assert.Contains(t, out, "blogbell")
		assert.Contains(t, out, "3 new")
		assert.Contains(t, out, "live")
		assert.NotContains(t, out, "offline")
		assert.Equal(t, 80, lipgloss.Width(out))
	})

	t.Run("no unread badge at zero", func(t *testing.T) {
		out := l.RenderHeader("blogbell", Badges{SignedIn: true})
		assert.NotContains(t, out, "new")
		assert.Contains(t, out, "offline")
	})

	t.Run("signed out", func(t *testing.T) {
		out := l.RenderHeader("blogbell", Badges{Unread: 5})
		assert.Contains(t, out, "signed out")
		assert.NotContains(t, out, "5 new")
	})
}

func TestRenderStatusBar(t *testing.T) {
	l := NewLayout(60, 10)

	out := l.RenderStatusBar("q quit", "")
	assert.Contains(t, out, "q quit")

	out = l.RenderStatusBar("q quit", "Refreshing failed")
	assert.Contains(t, out, "Refreshing failed")
	assert.NotContains(t, out, "q quit")
}

func TestContentHeight(t *testing.T) {
	assert.Equal(t, 22, NewLayout(80, 24).ContentHeight())
	assert.Equal(t, 0, NewLayout(80, 1).ContentHeight())
}
