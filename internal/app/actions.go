package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/blogbell/internal/api"
	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/notify"
	"github.com/nhle/blogbell/internal/session"
)

const (
	actionTimeout = 30 * time.Second
	noticeTTL     = 6 * time.Second
	clockInterval = time.Minute
)

// sessionOpenedMsg is sent once a session has been assembled. err is the
// result of the first history fetch; the session is usable either way.
type sessionOpenedMsg struct {
	sess *session.Session
	err  error
}

// actionResultMsg reports the outcome of a store operation.
type actionResultMsg struct {
	action string
	err    error
}

// historyLoadedMsg carries the archive's page after a load or a read.
// archive identifies the session it belongs to.
type historyLoadedMsg struct {
	archive *notify.Archive
	action  string
	page    *model.HistoryPage
	err     error
}

// credentialsSavedMsg is sent after the sign-in form has been persisted.
type credentialsSavedMsg struct {
	err error
}

// noticeExpiredMsg clears the notice with the matching sequence number.
type noticeExpiredMsg struct {
	seq int
}

// clockMsg re-renders relative timestamps.
type clockMsg struct{}

// openSession assembles a session and signs it in.
func (m Model) openSession() tea.Cmd {
	cfg := *m.cfg
	creds := m.creds
	logger := m.logger
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		sess, err := session.Open(ctx, &cfg, creds, logger)
		return sessionOpenedMsg{sess: sess, err: err}
	}
}

// runAction executes fn against the store off the UI goroutine.
func runAction(action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionResultMsg{action: action, err: fn(ctx)}
	}
}

// loadHistory fetches one page of history.
func loadHistory(archive *notify.Archive, page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		p, err := archive.Load(ctx, page)
		return historyLoadedMsg{archive: archive, action: "Loading history", page: p, err: err}
	}
}

// markHistoryRead acknowledges an archived notification and reports the
// page as it stands afterwards.
func markHistoryRead(archive *notify.Archive, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		err := archive.MarkAsRead(ctx, id)
		p, _ := archive.Current()
		return historyLoadedMsg{archive: archive, action: "Marking as read", page: p, err: err}
	}
}

// saveCredentials stores the token and, when it changed, the server
// address. cfg is the configuration to persist.
func saveCredentials(ring *credential.Ring, token string, cfg model.AppConfig, path string, baseURLChanged bool) tea.Cmd {
	return func() tea.Msg {
		if err := ring.Set(credential.SessionTokenKey, token); err != nil {
			return credentialsSavedMsg{err: err}
		}
		if baseURLChanged && path != "" {
			if err := model.SaveConfig(path, &cfg); err != nil {
				return credentialsSavedMsg{err: err}
			}
		}
		return credentialsSavedMsg{}
	}
}

func clockTick() tea.Cmd {
	return tea.Tick(clockInterval, func(time.Time) tea.Msg {
		return clockMsg{}
	})
}

func expireNotice(seq int) tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{seq: seq}
	})
}

// describeError turns an action failure into a status bar notice.
func describeError(action string, err error) string {
	switch {
	case api.IsAuthError(err):
		return "Session rejected by the server. Press L to sign in again."
	case errors.Is(err, api.ErrNoCredential), errors.Is(err, notify.ErrSignedOut):
		return "Signed out."
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s timed out", action)
	default:
		return fmt.Sprintf("%s failed: %v", action, err)
	}
}
