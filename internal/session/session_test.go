package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/stream"
)

func newServer(t *testing.T, pushes <-chan model.Notification) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":[{"id":"old","type":"like","message":"hello","is_read":false,"created_at":"2026-01-01T00:00:00Z"}]}`)
	})
	mux.HandleFunc("GET /v1/notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"count":1}}`)
	})
	mux.HandleFunc("GET /v1/notifications/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event: ping\ndata: 0\n\n")
		w.(http.Flusher).Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case n := <-pushes:
				data, _ := json.Marshal(n)
				fmt.Fprintf(w, "event: notification\ndata: %s\n\n", data)
				w.(http.Flusher).Flush()
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAndClose(t *testing.T) {
	pushes := make(chan model.Notification, 1)
	srv := newServer(t, pushes)

	cfg := model.DefaultAppConfig()
	cfg.Server.BaseURL = srv.URL

	s, err := Open(context.Background(), cfg, credential.Static("tok"), zap.NewNop().Sugar())
	require.NoError(t, err)

	snap := s.Store.Snapshot()
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 1, snap.Unread)

	require.Eventually(t, func() bool { return s.Store.Snapshot().Live }, 2*time.Second, 5*time.Millisecond)

	pushes <- model.Notification{ID: "new", Type: model.NotificationLike, Message: "hi"}
	require.Eventually(t, func() bool { return s.Store.Snapshot().Unread == 2 }, 2*time.Second, 5*time.Millisecond)

	s.Close()
	assert.Equal(t, stream.StateIdle, s.Channel.State())
	snap = s.Store.Snapshot()
	assert.False(t, snap.SignedIn)
	assert.False(t, snap.Live)
	assert.Empty(t, snap.Items)
}

func TestOpenSignedOut(t *testing.T) {
	srv := newServer(t, nil)

	cfg := model.DefaultAppConfig()
	cfg.Server.BaseURL = srv.URL

	s, err := Open(context.Background(), cfg, credential.Static(""), zap.NewNop().Sugar())
	require.Error(t, err)
	require.NotNil(t, s)
	defer s.Close()

	assert.Equal(t, stream.StateIdle, s.Channel.State())
	assert.Empty(t, s.Store.Snapshot().Items)
}
