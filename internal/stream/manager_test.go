package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// eventServer is a minimal notification stream endpoint.
type eventServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conns    map[int]chan string
	nextConn int
	tokens   []string

	requests atomic.Int32
	status   atomic.Int32
}

func newEventServer(t *testing.T) *eventServer {
	t.Helper()

	s := &eventServer{conns: make(map[int]chan string)}
	s.status.Store(http.StatusOK)
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(func() {
		s.closeAll()
		s.srv.Close()
	})
	return s
}

func (s *eventServer) serve(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	if r.URL.Path != streamPath {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.tokens = append(s.tokens, r.URL.Query().Get("auth_token"))
	s.mu.Unlock()

	if status := int(s.status.Load()); status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	ch := make(chan string, 16)
	s.mu.Lock()
	s.nextConn++
	id := s.nextConn
	s.conns[id] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	fmt.Fprint(w, "event: ping\ndata: 1\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
	}
}

func (s *eventServer) open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *eventServer) lastToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return ""
	}
	return s.tokens[len(s.tokens)-1]
}

func (s *eventServer) send(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.conns {
		ch <- frame
	}
}

func (s *eventServer) publish(t *testing.T, n model.Notification) {
	t.Helper()
	data, err := json.Marshal(n)
	require.NoError(t, err)
	s.send(fmt.Sprintf("event: notification\ndata: %s\n\n", data))
}

// closeAll ends every open stream from the server side.
func (s *eventServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.conns {
		close(ch)
		delete(s.conns, id)
	}
}

// countingTransport tracks how many response bodies are open at once.
type countingTransport struct {
	base    http.RoundTripper
	current atomic.Int32
	peak    atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	n := c.current.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	resp.Body = &countedBody{ReadCloser: resp.Body, owner: c}
	return resp, nil
}

type countedBody struct {
	io.ReadCloser
	owner *countingTransport
	once  sync.Once
}

func (b *countedBody) Close() error {
	b.once.Do(func() { b.owner.current.Add(-1) })
	return b.ReadCloser.Close()
}

// recorder collects delivered notification ids.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) add(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, n.ID)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

type managerFixture struct {
	server    *eventServer
	transport *countingTransport
	manager   *Manager
}

func newFixture(t *testing.T, creds credential.Provider, mutate func(*Options)) *managerFixture {
	t.Helper()

	server := newEventServer(t)
	transport := &countingTransport{base: http.DefaultTransport}
	opts := Options{
		BaseURL:        server.srv.URL,
		RefreshAfter:   time.Minute,
		ReconnectDelay: 20 * time.Millisecond,
		HTTPClient:     &http.Client{Transport: transport},
	}
	if mutate != nil {
		mutate(&opts)
	}

	m := NewManager(opts, creds, zap.NewNop().Sugar())
	t.Cleanup(m.Stop)

	return &managerFixture{server: server, transport: transport, manager: m}
}

func (f *managerFixture) waitOpen(t *testing.T, conns int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.manager.State() == StateOpen && f.server.open() == conns
	}, waitFor, tick)
}

func TestManagerDeliversInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), nil)
	var first, second recorder
	f.manager.Subscribe(first.add)
	unsubscribe := f.manager.Subscribe(second.add)

	f.manager.Start()
	f.waitOpen(t, 1)
	assert.Equal(t, "tok", f.server.lastToken())

	for _, id := range []string{"n1", "n2", "n3"} {
		f.server.publish(t, model.Notification{ID: id, Type: model.NotificationLike})
	}

	require.Eventually(t, func() bool { return len(first.get()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"n1", "n2", "n3"}, first.get())
	require.Eventually(t, func() bool { return len(second.get()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"n1", "n2", "n3"}, second.get())

	unsubscribe()
	unsubscribe()
	f.server.publish(t, model.Notification{ID: "n4"})

	require.Eventually(t, func() bool { return len(first.get()) == 4 }, waitFor, tick)
	assert.Len(t, second.get(), 3)
	assert.False(t, f.manager.LastEvent().IsZero())
}

func TestManagerStartWithoutCredential(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static(""), nil)
	f.manager.Start()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateIdle, f.manager.State())
	assert.Zero(t, f.server.requests.Load())
}

func TestManagerStartIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), nil)
	f.manager.Start()
	f.manager.Start()
	f.waitOpen(t, 1)
	f.manager.Start()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.server.requests.Load())
	assert.Equal(t, int32(1), f.transport.peak.Load())
}

func TestManagerReconnectsAfterStreamEnd(t *testing.T) {
	t.Parallel()

	var states []State
	var statesMu sync.Mutex
	f := newFixture(t, credential.Static("tok"), func(o *Options) {
		o.OnStateChange = func(s State) {
			statesMu.Lock()
			states = append(states, s)
			statesMu.Unlock()
		}
	})
	var got recorder
	f.manager.Subscribe(got.add)

	f.manager.Start()
	f.waitOpen(t, 1)

	f.server.closeAll()
	require.Eventually(t, func() bool {
		return f.server.requests.Load() == 2 && f.server.open() == 1 && f.manager.State() == StateOpen
	}, waitFor, tick)

	f.server.publish(t, model.Notification{ID: "after"})
	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitFor, tick)
	assert.LessOrEqual(t, f.transport.peak.Load(), int32(1))

	statesMu.Lock()
	defer statesMu.Unlock()
	assert.Contains(t, states, StateReconnecting)
}

func TestManagerRetriesRejectedHandshake(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), nil)
	f.server.status.Store(http.StatusServiceUnavailable)

	f.manager.Start()
	require.Eventually(t, func() bool { return f.server.requests.Load() >= 3 }, waitFor, tick)
	assert.NotEqual(t, StateOpen, f.manager.State())

	f.server.status.Store(http.StatusOK)
	f.waitOpen(t, 1)
}

func TestManagerRenewsBeforeIdleTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), func(o *Options) {
		o.RefreshAfter = 60 * time.Millisecond
	})

	f.manager.Start()
	require.Eventually(t, func() bool { return f.server.requests.Load() >= 3 }, waitFor, tick)

	assert.LessOrEqual(t, f.transport.peak.Load(), int32(1))
	require.Eventually(t, func() bool { return f.server.open() <= 1 }, waitFor, tick)
}

func TestManagerStopThenStartDeliversOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), nil)
	var got recorder
	f.manager.Subscribe(got.add)

	f.manager.Start()
	f.waitOpen(t, 1)

	f.manager.Stop()
	assert.Equal(t, StateIdle, f.manager.State())
	assert.Zero(t, f.transport.current.Load())
	f.manager.Start()

	require.Eventually(t, func() bool {
		return f.manager.State() == StateOpen && f.server.requests.Load() == 2
	}, waitFor, tick)

	// Publishing also reaches the old server-side stream if it has not
	// noticed the disconnect yet.
	f.server.publish(t, model.Notification{ID: "once"})

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitFor, tick)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"once"}, got.get())
	assert.LessOrEqual(t, f.transport.peak.Load(), int32(1))
}

func TestManagerStopCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), func(o *Options) {
		o.ReconnectDelay = 100 * time.Millisecond
	})
	f.server.status.Store(http.StatusInternalServerError)

	f.manager.Start()
	require.Eventually(t, func() bool { return f.manager.State() == StateReconnecting }, waitFor, tick)

	f.manager.Stop()
	f.manager.Stop()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), f.server.requests.Load())
	assert.Equal(t, StateIdle, f.manager.State())
}

func TestManagerRereadsCredential(t *testing.T) {
	t.Parallel()

	var token atomic.Value
	token.Store("first")
	creds := credential.ProviderFunc(func(context.Context) (string, bool) {
		tok := token.Load().(string)
		return tok, tok != ""
	})

	f := newFixture(t, creds, nil)
	f.manager.Start()
	f.waitOpen(t, 1)
	assert.Equal(t, "first", f.server.lastToken())

	token.Store("second")
	f.server.closeAll()

	require.Eventually(t, func() bool {
		return f.server.lastToken() == "second" && f.manager.State() == StateOpen
	}, waitFor, tick)
}

func TestManagerGoesIdleWhenCredentialDisappears(t *testing.T) {
	t.Parallel()

	var signedIn atomic.Bool
	signedIn.Store(true)
	creds := credential.ProviderFunc(func(context.Context) (string, bool) {
		return "tok", signedIn.Load()
	})

	f := newFixture(t, creds, nil)
	f.manager.Start()
	f.waitOpen(t, 1)

	signedIn.Store(false)
	f.server.closeAll()

	require.Eventually(t, func() bool { return f.manager.State() == StateIdle }, waitFor, tick)
	assert.Equal(t, int32(1), f.server.requests.Load())
}

func TestManagerSkipsMalformedPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t, credential.Static("tok"), nil)
	var got recorder
	f.manager.Subscribe(got.add)

	f.manager.Start()
	f.waitOpen(t, 1)

	f.server.send("event: notification\ndata: {not json\n\n")
	f.server.send("event: notification\ndata: {\"type\":\"like\"}\n\n")
	f.server.send("event: other\ndata: x\n\n")
	f.server.publish(t, model.Notification{ID: "good"})

	require.Eventually(t, func() bool { return len(got.get()) == 1 }, waitFor, tick)
	assert.Equal(t, []string{"good"}, got.get())
	assert.Equal(t, StateOpen, f.manager.State())
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	fixed := NewManager(Options{ReconnectDelay: 5 * time.Second}, credential.Static(""), zap.NewNop().Sugar())
	fixed.failures = 4
	assert.Equal(t, 5*time.Second, fixed.backoffLocked())

	growing := NewManager(Options{
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 10 * time.Second,
	}, credential.Static(""), zap.NewNop().Sugar())

	for failures, want := range []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	} {
		growing.failures = failures
		assert.Equal(t, want, growing.backoffLocked(), "failures=%d", failures)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "state(9)", State(9).String())
}
