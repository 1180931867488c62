// Package sync carries notification store updates into the Bubble Tea
// event loop.
package sync

import (
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/blogbell/internal/notify"
)

// Source is the part of notify.Store a Feed observes.
type Source interface {
	Subscribe(fn func(notify.Snapshot)) func()
	Snapshot() notify.Snapshot
}

// SnapshotMsg is a tea.Msg with the latest store state.
type SnapshotMsg struct {
	Snapshot notify.Snapshot
	Feed     *Feed
}

// Feed forwards store snapshots to the UI. Only the newest undelivered
// snapshot is kept; intermediate states are skipped when the UI lags.
type Feed struct {
	ch          chan notify.Snapshot
	done        chan struct{}
	unsubscribe func()

	mu     gosync.Mutex
	closed bool
}

// NewFeed subscribes to src and queues its current state.
func NewFeed(src Source) *Feed {
	f := &Feed{
		ch:   make(chan notify.Snapshot, 1),
		done: make(chan struct{}),
	}
	f.unsubscribe = src.Subscribe(f.push)
	f.push(src.Snapshot())
	return f
}

// push replaces any queued snapshot with s.
func (f *Feed) push(s notify.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	select {
	case <-f.ch:
	default:
	}
	f.ch <- s
}

// Wait returns a tea.Cmd that blocks until the next snapshot. It must be
// re-issued after every SnapshotMsg to keep listening. After Stop the
// command yields nil.
func (f *Feed) Wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-f.ch:
			return SnapshotMsg{Snapshot: s, Feed: f}
		case <-f.done:
			return nil
		}
	}
}

// Stop unsubscribes from the store and releases any pending Wait.
func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.unsubscribe()
	close(f.done)
}
