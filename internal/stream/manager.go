// Package stream maintains the live notification channel: a single
// server-sent event stream per signed-in session that is reconnected on
// failure and renewed before the server's idle timeout can cut it.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/model"
)

// Event names sent by the notification server.
const (
	EventNotification = "notification"
	EventPing         = "ping"
)

// streamPath is the server endpoint for the event stream.
const streamPath = "/v1/notifications/stream"

// errStreamEnded is reported when the server closes the stream.
var errStreamEnded = errors.New("stream ended by server")

// State represents the lifecycle state of the channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Manager.
type Options struct {
	// BaseURL is the notification server root (e.g., http://localhost:8080).
	BaseURL string

	// RefreshAfter is the lifetime of an open channel before it is
	// renewed. Keep it below the server's idle timeout.
	RefreshAfter time.Duration

	// ReconnectDelay is the wait after a failure before reconnecting.
	ReconnectDelay time.Duration

	// MaxReconnectDelay enables doubling backoff up to this cap when it is
	// greater than ReconnectDelay. Zero keeps the delay fixed.
	MaxReconnectDelay time.Duration

	// HTTPClient performs the stream request. It must not carry an
	// overall timeout. Defaults to a plain http.Client.
	HTTPClient *http.Client

	// OnStateChange, when set, is called after every state transition
	// with the state current at call time.
	OnStateChange func(State)
}

// channel is one stream request and the goroutine reading it.
type channel struct {
	gen    uint64
	epoch  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

type subscriber struct {
	id uint64
	fn func(model.Notification)
}

// Manager owns at most one open notification stream.
//
// Every connect attempt, renewal and reconnect runs under a new
// generation number; timer callbacks and readers from an older
// generation find the number changed and do nothing.
type Manager struct {
	opts       Options
	creds      credential.Provider
	httpClient *http.Client
	logger     *zap.SugaredLogger

	mu             sync.Mutex
	state          State
	gen            uint64
	epoch          uint64
	channels       map[uint64]*channel
	refreshTimer   *time.Timer
	reconnectTimer *time.Timer
	failures       int
	lastEvent      time.Time

	subsMu  sync.RWMutex
	subs    []subscriber
	nextSub uint64
}

// NewManager creates an idle Manager.
func NewManager(opts Options, creds credential.Provider, logger *zap.SugaredLogger) *Manager {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	return &Manager{
		opts:       opts,
		creds:      creds,
		httpClient: client,
		logger:     logger,
		channels:   make(map[uint64]*channel),
	}
}

// State returns the current channel state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastEvent returns when the last event (including pings) arrived.
func (m *Manager) LastEvent() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEvent
}

// Subscribe registers fn to receive every decoded notification in arrival
// order. fn runs on the reader goroutine and must not call Stop. The
// returned function unsubscribes and may be called more than once.
func (m *Manager) Subscribe(fn func(model.Notification)) func() {
	m.subsMu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})
	m.subsMu.Unlock()

	return func() {
		m.subsMu.Lock()
		defer m.subsMu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// Start begins connecting. It does nothing when a channel is already
// connecting, open or waiting to reconnect, and silently does nothing
// when no credential is available.
func (m *Manager) Start() {
	if _, ok := m.creds.Token(context.Background()); !ok {
		m.logger.Debugw("no session credential, not opening notification channel")
		return
	}

	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	m.failures = 0
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState()
	go m.run(gen)
}

// Stop closes the channel, cancels pending timers and waits until every
// reader has exited. It is safe to call repeatedly.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.gen++
	m.epoch++
	m.stopTimersLocked()
	open := make([]*channel, 0, len(m.channels))
	for _, ch := range m.channels {
		open = append(open, ch)
	}
	wasIdle := m.state == StateIdle
	m.state = StateIdle
	m.mu.Unlock()

	for _, ch := range open {
		ch.cancel()
	}
	for _, ch := range open {
		<-ch.done
	}

	if !wasIdle {
		m.logger.Infow("notification channel stopped")
		m.notifyState()
	}
}

// run performs one connect attempt under generation gen and reads the
// stream until it fails or is cancelled.
func (m *Manager) run(gen uint64) {
	token, ok := m.creds.Token(context.Background())
	if !ok {
		m.settleIdle(gen)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{gen: gen, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		cancel()
		return
	}
	ch.epoch = m.epoch
	previous := make([]chan struct{}, 0, len(m.channels))
	for _, other := range m.channels {
		previous = append(previous, other.done)
	}
	m.channels[gen] = ch
	m.mu.Unlock()

	defer m.release(ch)

	// Earlier channels have been cancelled; never overlap with them.
	for _, done := range previous {
		<-done
	}

	resp, err := m.dial(ctx, token)
	if err != nil {
		m.fail(gen, err)
		return
	}
	defer resp.Body.Close()

	if !m.opened(gen) {
		return
	}

	m.fail(gen, m.read(ch, resp.Body))
}

// dial issues the stream request. The token travels as a query parameter
// because event-stream clients cannot always attach headers.
func (m *Manager) dial(ctx context.Context, token string) (*http.Response, error) {
	q := url.Values{}
	q.Set("auth_token", token)
	endpoint := m.opts.BaseURL + streamPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected status %d", resp.StatusCode)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		resp.Body.Close()
		return nil, fmt.Errorf("opening stream: unexpected content type %q", mediaType)
	}

	return resp, nil
}

// opened moves gen to the open state and arms the renewal timer.
func (m *Manager) opened(gen uint64) bool {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return false
	}
	m.state = StateOpen
	m.failures = 0
	m.lastEvent = time.Now()
	if m.opts.RefreshAfter > 0 {
		m.refreshTimer = time.AfterFunc(m.opts.RefreshAfter, func() { m.renew(gen) })
	}
	m.mu.Unlock()

	m.logger.Infow("notification channel open", "generation", gen)
	m.notifyState()
	return true
}

// read dispatches events until the stream ends.
func (m *Manager) read(ch *channel, body io.Reader) error {
	for ev, err := range readEvents(body) {
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errStreamEnded
			}
			return err
		}
		m.handle(ch, ev)
	}
	return errStreamEnded
}

// handle processes a single event from channel ch.
func (m *Manager) handle(ch *channel, ev Event) {
	m.mu.Lock()
	current := m.epoch == ch.epoch
	if current {
		m.lastEvent = time.Now()
	}
	m.mu.Unlock()

	// Events read after Stop belong to a torn-down session.
	if !current {
		return
	}

	switch ev.Name {
	case EventNotification:
		var n model.Notification
		if err := json.Unmarshal([]byte(ev.Data), &n); err != nil {
			m.logger.Warnw("skipping malformed notification event", "error", err)
			return
		}
		if n.ID == "" {
			m.logger.Warnw("skipping notification event without id")
			return
		}
		m.deliver(n)
	case EventPing:
	default:
		m.logger.Debugw("ignoring unknown event", "event", ev.Name)
	}
}

// deliver fans a notification out to subscribers in registration order.
func (m *Manager) deliver(n model.Notification) {
	m.subsMu.RLock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.subsMu.RUnlock()

	for _, s := range subs {
		s.fn(n)
	}
}

// renew replaces the open channel of generation gen with a fresh one.
func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	current := m.channels[gen]
	m.gen++
	next := m.gen
	m.stopTimersLocked()
	m.state = StateConnecting
	m.mu.Unlock()

	m.logger.Infow("renewing notification channel before idle timeout")
	m.notifyState()

	if current != nil {
		current.cancel()
	}
	m.run(next)
}

// fail records a channel failure for gen and schedules a reconnect.
func (m *Manager) fail(gen uint64, cause error) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	delay := m.backoffLocked()
	m.failures++
	m.state = StateReconnecting
	m.reconnectTimer = time.AfterFunc(delay, func() { m.retry(gen) })
	m.mu.Unlock()

	m.logger.Warnw("notification channel lost, reconnecting",
		"error", cause, "retry_in", delay)
	m.notifyState()
}

// retry starts a new attempt once the reconnect timer for gen fires.
func (m *Manager) retry(gen uint64) {
	m.mu.Lock()
	if m.gen != gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.gen++
	next := m.gen
	m.state = StateConnecting
	m.mu.Unlock()

	m.notifyState()
	m.run(next)
}

// settleIdle returns to idle when the credential vanished mid-session.
func (m *Manager) settleIdle(gen uint64) {
	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.stopTimersLocked()
	m.state = StateIdle
	m.mu.Unlock()

	m.logger.Infow("session credential gone, notification channel idle")
	m.notifyState()
}

// release forgets a channel once its goroutine is done with it.
func (m *Manager) release(ch *channel) {
	ch.cancel()
	m.mu.Lock()
	delete(m.channels, ch.gen)
	m.mu.Unlock()
	close(ch.done)
}

// backoffLocked returns the delay before the next reconnect attempt.
func (m *Manager) backoffLocked() time.Duration {
	delay := m.opts.ReconnectDelay
	if m.opts.MaxReconnectDelay <= delay {
		return delay
	}
	for i := 0; i < m.failures && delay < m.opts.MaxReconnectDelay; i++ {
		delay *= 2
	}
	if delay > m.opts.MaxReconnectDelay {
		delay = m.opts.MaxReconnectDelay
	}
	return delay
}

func (m *Manager) stopTimersLocked() {
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) notifyState() {
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(m.State())
	}
}
