// Package app is the root Bubble Tea model of the terminal client.
package app

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/api"
	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/keys"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/notify"
	"github.com/nhle/blogbell/internal/session"
	appsync "github.com/nhle/blogbell/internal/sync"
	"github.com/nhle/blogbell/internal/ui"
	"github.com/nhle/blogbell/internal/ui/command"
	"github.com/nhle/blogbell/internal/ui/detail"
	helpview "github.com/nhle/blogbell/internal/ui/help"
	"github.com/nhle/blogbell/internal/ui/history"
	"github.com/nhle/blogbell/internal/ui/inbox"
	"github.com/nhle/blogbell/internal/ui/login"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewDetail
	ViewHelp
	ViewCommand
	ViewLogin
	ViewHistory
)

// Options carries the dependencies of the root model.
type Options struct {
	Config     *model.AppConfig
	ConfigPath string
	Ring       *credential.Ring
	Logger     *zap.SugaredLogger
}

// Model is the root Bubble Tea model. It owns the member session and
// routes between the notification list and its overlays.
type Model struct {
	cfg     *model.AppConfig
	cfgPath string
	ring    *credential.Ring
	creds   credential.Provider
	logger  *zap.SugaredLogger

	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	inbox        inbox.Model
	history      history.Model
	detail       detail.Model
	detailReturn ViewState
	helpView     helpview.Model
	commandView  command.Model
	loginView    login.Model
	ready        bool

	session  *session.Session
	feed     *appsync.Feed
	snapshot notify.Snapshot
	opening  bool

	notice    string
	noticeSeq int
}

// New creates the root model. Without a usable stored token it starts on
// the sign-in form.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	base := opts.Config.Server.BaseURL

	m := Model{
		cfg:         opts.Config,
		cfgPath:     opts.ConfigPath,
		ring:        opts.Ring,
		creds:       credential.NewKeyringProvider(opts.Ring),
		logger:      opts.Logger,
		currentView: ViewList,
		keys:        k,
		inbox:       inbox.New(k, 80, 24),
		history:     history.New(k, 80, 24),
		detail:      detail.New(k, base, 80, 24),
		helpView:    helpview.New(k, base, 80, 24),
		commandView: command.New(80, 24),
	}

	if _, ok := m.creds.Token(context.Background()); ok {
		m.opening = true
	} else {
		m.currentView = ViewLogin
		m.loginView = login.New(base, "", 80, 24)
	}
	return m
}

// Init opens the session when a token is stored, otherwise starts the
// sign-in form.
func (m Model) Init() tea.Cmd {
	if m.currentView == ViewLogin {
		return tea.Batch(m.loginView.Init(), clockTick())
	}
	return tea.Batch(m.openSession(), clockTick())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.history.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.loginView.SetSize(w, h)
		if m.currentView == ViewLogin {
			return m.updateActiveView(msg)
		}
		return m, nil

	case sessionOpenedMsg:
		return m.handleSessionOpened(msg)

	case appsync.SnapshotMsg:
		if msg.Feed != m.feed {
			return m, nil
		}
		return m.applySnapshot(msg.Snapshot)

	case actionResultMsg:
		if msg.err == nil {
			return m, nil
		}
		m.logger.Warnw("action failed", "action", msg.action, "error", msg.err)
		return m, m.setNotice(describeError(msg.action, msg.err))

	case historyLoadedMsg:
		return m.handleHistoryLoaded(msg)

	case noticeExpiredMsg:
		if msg.seq == m.noticeSeq {
			m.notice = ""
		}
		return m, nil

	case clockMsg:
		return m, clockTick()

	case inbox.OpenMsg:
		m.openDetail(msg.Notification, ViewList)
		if msg.Notification.IsRead {
			return m, nil
		}
		return m, m.markRead(msg.Notification.ID)

	case inbox.MarkReadMsg:
		return m, m.markRead(msg.ID)

	case history.OpenMsg:
		m.openDetail(msg.Notification, ViewHistory)
		if msg.Notification.IsRead {
			return m, nil
		}
		return m, m.markHistoryRead(msg.Notification.ID)

	case history.MarkReadMsg:
		return m, m.markHistoryRead(msg.ID)

	case history.PageMsg:
		return m.loadHistoryPage(msg.Page)

	case detail.BackMsg:
		m.currentView = m.detailReturn
		m.detail.Clear()
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		return m.executeCommand(string(msg))

	case command.CancelMsg:
		m.currentView = m.previousView
		return m, nil

	case login.SubmittedMsg:
		return m.handleLogin(msg)

	case login.CancelledMsg:
		if m.session == nil {
			return m, tea.Quit
		}
		m.currentView = ViewList
		return m, nil

	case credentialsSavedMsg:
		if msg.err != nil {
			m.logger.Errorw("saving credentials failed", "error", msg.err)
			m.currentView = ViewLogin
			m.loginView = login.New(m.cfg.Server.BaseURL, "Could not store the token: "+msg.err.Error(),
				m.layout.ContentWidth(), m.layout.ContentHeight())
			return m, m.loginView.Init()
		}
		m.opening = true
		return m, m.openSession()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.closeSession()
			return m, tea.Quit
		}
		if m.currentView == ViewLogin || m.currentView == ViewCommand {
			break
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.currentView == ViewList {
				m.closeSession()
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.Help):
			if m.currentView == ViewHelp {
				m.currentView = m.previousView
				return m, nil
			}
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil

		case key.Matches(msg, m.keys.Back):
			switch m.currentView {
			case ViewHelp:
				m.currentView = m.previousView
				return m, nil
			case ViewHistory:
				m.currentView = ViewList
				return m, nil
			}

		case key.Matches(msg, m.keys.Command):
			m.previousView = m.currentView
			m.currentView = ViewCommand
			return m, m.commandView.Focus()

		case key.Matches(msg, m.keys.Refresh):
			switch m.currentView {
			case ViewList:
				return m.executeCommand(command.Refresh)
			case ViewHistory:
				return m.loadHistoryPage(max(m.history.Page(), 1))
			}

		case key.Matches(msg, m.keys.History):
			if m.currentView == ViewList || m.currentView == ViewDetail {
				return m.executeCommand(command.History)
			}

		case key.Matches(msg, m.keys.MarkAll):
			if m.currentView == ViewList || m.currentView == ViewDetail {
				return m.executeCommand(command.ReadAll)
			}

		case key.Matches(msg, m.keys.SignOut):
			if m.currentView == ViewList || m.currentView == ViewDetail {
				return m.executeCommand(command.Logout)
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewHistory:
		m.history, cmd = m.history.Update(msg)
	case ViewDetail:
		m.detail, cmd = m.detail.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewLogin:
		m.loginView, cmd = m.loginView.Update(msg)
	}

	return m, cmd
}

func (m Model) handleSessionOpened(msg sessionOpenedMsg) (tea.Model, tea.Cmd) {
	// Signed out while the session was being opened.
	if !m.opening {
		msg.sess.Close()
		return m, nil
	}
	m.opening = false

	if msg.err != nil && api.IsAuthError(msg.err) {
		msg.sess.Close()
		m.logger.Warnw("stored session token rejected", "error", msg.err)
		return m.showLogin("The server rejected the stored token.")
	}

	m.session = msg.sess
	m.feed = appsync.NewFeed(msg.sess.Store)
	m.currentView = ViewList

	cmds := []tea.Cmd{m.feed.Wait()}
	if msg.err != nil {
		m.logger.Warnw("initial notification fetch failed", "error", msg.err)
		cmds = append(cmds, m.setNotice(describeError("Loading notifications", msg.err)))
	}
	return m, tea.Batch(cmds...)
}

func (m Model) applySnapshot(s notify.Snapshot) (tea.Model, tea.Cmd) {
	m.snapshot = s
	cmd := m.inbox.SetItems(s.Items, s.SignedIn, s.Loading)

	// Keep the open notification's read flag current.
	if cur, ok := m.detail.Current(); ok {
		for _, n := range s.Items {
			if n.ID == cur.ID && n.IsRead != cur.IsRead {
				m.detail.SetNotification(n)
				break
			}
		}
	}

	return m, tea.Batch(cmd, m.feed.Wait())
}

// openDetail shows n; back returns to from.
func (m *Model) openDetail(n model.Notification, from ViewState) {
	m.previousView = m.currentView
	m.detailReturn = from
	m.currentView = ViewDetail
	m.detail.SetNotification(n)
}

func (m Model) loadHistoryPage(page int) (tea.Model, tea.Cmd) {
	if m.session == nil {
		return m, m.setNotice("Not signed in.")
	}
	m.history.SetLoading(true)
	return m, loadHistory(m.session.History, page)
}

func (m Model) handleHistoryLoaded(msg historyLoadedMsg) (tea.Model, tea.Cmd) {
	// A page from a session that has since been closed.
	if m.session == nil || msg.archive != m.session.History {
		return m, nil
	}

	m.history.SetLoading(false)
	var cmds []tea.Cmd
	if msg.page != nil {
		cmds = append(cmds, m.history.SetPage(msg.page))
		if cur, ok := m.detail.Current(); ok {
			for _, n := range msg.page.Items {
				if n.ID == cur.ID && n.IsRead != cur.IsRead {
					m.detail.SetNotification(n)
					break
				}
			}
		}
	}
	if msg.err != nil {
		m.logger.Warnw("history action failed", "action", msg.action, "error", msg.err)
		cmds = append(cmds, m.setNotice(describeError(msg.action, msg.err)))
	}
	return m, tea.Batch(cmds...)
}

// markHistoryRead acknowledges a notification listed in history.
func (m Model) markHistoryRead(id string) tea.Cmd {
	if m.session == nil {
		return nil
	}
	return markHistoryRead(m.session.History, id)
}

func (m Model) handleLogin(msg login.SubmittedMsg) (tea.Model, tea.Cmd) {
	changed := msg.BaseURL != "" && msg.BaseURL != m.cfg.Server.BaseURL
	if changed {
		m.cfg.Server.BaseURL = msg.BaseURL
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.detail = detail.New(m.keys, msg.BaseURL, w, h)
		m.helpView = helpview.New(m.keys, msg.BaseURL, w, h)
	}
	m.currentView = ViewList
	return m, saveCredentials(m.ring, msg.Token, *m.cfg, m.cfgPath, changed)
}

// markRead acknowledges one notification.
func (m Model) markRead(id string) tea.Cmd {
	if m.session == nil {
		return nil
	}
	store := m.session.Store
	return runAction("Marking as read", func(ctx context.Context) error {
		return store.MarkAsRead(ctx, id)
	})
}

// executeCommand runs a palette command or its key binding.
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	switch cmd {
	case command.Quit:
		m.closeSession()
		return m, tea.Quit

	case command.Logout:
		m.closeSession()
		if err := m.ring.Delete(credential.SessionTokenKey); err != nil && !errors.Is(err, credential.ErrNotFound) {
			m.logger.Errorw("removing session token failed", "error", err)
		}
		return m.showLogin("")
	}

	if m.session == nil {
		return m, m.setNotice("Not signed in.")
	}
	store := m.session.Store

	switch cmd {
	case command.Refresh:
		return m, runAction("Refreshing", store.Refresh)
	case command.ReadAll:
		return m, runAction("Marking all as read", store.MarkAllAsRead)
	case command.History:
		m.currentView = ViewHistory
		return m.loadHistoryPage(max(m.history.Page(), 1))
	default:
		return m, m.setNotice("Unknown command: " + cmd)
	}
}

func (m Model) showLogin(reason string) (tea.Model, tea.Cmd) {
	m.currentView = ViewLogin
	m.opening = false
	m.snapshot = notify.Snapshot{}
	m.inbox.SetItems(nil, false, false)
	m.history = history.New(m.keys, m.layout.ContentWidth(), m.layout.ContentHeight())
	m.detail.Clear()
	m.loginView = login.New(m.cfg.Server.BaseURL, reason, m.layout.ContentWidth(), m.layout.ContentHeight())
	return m, m.loginView.Init()
}

// closeSession stops the feed and signs the store out.
func (m *Model) closeSession() {
	if m.feed != nil {
		m.feed.Stop()
		m.feed = nil
	}
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeSeq++
	m.notice = text
	return expireNotice(m.noticeSeq)
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("blogbell", ui.Badges{
		SignedIn: m.snapshot.SignedIn,
		Unread:   m.snapshot.Unread,
		Live:     m.snapshot.Live,
		Loading:  m.snapshot.Loading || m.opening,
	})
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.notice)

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewList:
		return m.inbox.View()
	case ViewHistory:
		return m.history.View()
	case ViewDetail:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewLogin:
		return m.loginView.View()
	default:
		return ""
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc cancel"
	case ViewDetail:
		return "esc back | M mark all read | j/k scroll"
	case ViewLogin:
		return "enter next | ctrl+c quit"
	case ViewHistory:
		return "esc back | n/p page | enter open | m read | r reload"
	default:
		return "q quit | ? help | enter open | m read | M read all | H history | r refresh"
	}
}
