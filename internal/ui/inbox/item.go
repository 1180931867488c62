package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/theme"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Text() }

// Text is the human-readable sentence of the notification.
func (i Item) Text() string { return codec.Render(i.Notification.Message) }

// ItemDelegate implements list.ItemDelegate for notification rows.
type ItemDelegate struct {
	// now is overridable for deterministic rendering.
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(tea.Msg, *list.Model) tea.Cmd {
	return nil
}

// Render draws a single notification row: unread marker, actor initial,
// text and relative time.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, d.line(it, index == m.Index()))
}

func (d ItemDelegate) line(it Item, selected bool) string {
	n := it.Notification
	now := time.Now
	if d.now != nil {
		now = d.now
	}

	marker := "●"
	if n.IsRead {
		marker = " "
	}

	avatar := theme.AvatarStyle.Render(n.Actor.Initial())
	when := theme.DimmedStyle.Render(humanize.RelTime(n.CreatedAt, now(), "ago", "from now"))

	text := it.Text()
	if n.IsRead {
		text = theme.ReadItemStyle.Render(text)
	}

	line := fmt.Sprintf("%s %s %s  %s", marker, avatar, text, when)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}
