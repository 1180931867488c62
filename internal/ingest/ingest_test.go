package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/hub"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/tests/testutil"
)

func like() Activity {
	return Activity{
		Type:        model.NotificationLike,
		ActorID:     "u-alice",
		ActorName:   "Alice",
		PostID:      "p1",
		PostTitle:   "Go #1 tips",
		PostOwnerID: "u-bob",
	}
}

func newTestHandler(t *testing.T) (*Handler, *hub.Hub) {
	t.Helper()
	h := hub.New(4, zap.NewNop().Sugar())
	return NewHandler(testutil.NewTestStore(t), hub.NewLocalBroker(h), zap.NewNop().Sugar()), h
}

func TestHandleLike(t *testing.T) {
	handler, h := newTestHandler(t)
	stream := h.Register("u-bob")

	n, err := handler.Handle(context.Background(), like())
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "u-bob", n.UserID)
	assert.Equal(t, "/posts/p1", n.Link())

	msg, err := codec.Decode(n.Message)
	require.NoError(t, err)
	assert.Equal(t, codec.Message{Actor: "Alice", Action: "liked your post", Title: "Go #1 tips"}, msg)

	var pushed model.Notification
	require.NoError(t, json.Unmarshal(<-stream.Events(), &pushed))
	assert.Equal(t, n.ID, pushed.ID)
}

func TestHandleComment(t *testing.T) {
	handler, _ := newTestHandler(t)

	a := like()
	a.Type = model.NotificationComment
	a.CommentID = "c9"

	n, err := handler.Handle(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "c9", n.Target.CommentID)
	assert.Equal(t, "Alice commented on your post Go #1 tips", codec.Render(n.Message))
}

func TestHandleSkipsOwnPost(t *testing.T) {
	handler, _ := newTestHandler(t)

	a := like()
	a.ActorID = a.PostOwnerID

	n, err := handler.Handle(context.Background(), a)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestHandleRejectsInvalid(t *testing.T) {
	handler, _ := newTestHandler(t)

	for name, mutate := range map[string]func(*Activity){
		"unknown type": func(a *Activity) { a.Type = "share" },
		"no actor":     func(a *Activity) { a.ActorID = "" },
		"no post":      func(a *Activity) { a.PostID = "" },
		"no owner":     func(a *Activity) { a.PostOwnerID = "" },
	} {
		a := like()
		mutate(&a)
		_, err := handler.Handle(context.Background(), a)
		assert.ErrorIs(t, err, ErrInvalidActivity, name)
	}
}

// scriptedReader returns queued messages, then blocks until cancelled.
type scriptedReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	errs      []error
	committed []int64
	closed    bool
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestConsumerRun(t *testing.T) {
	handler, h := newTestHandler(t)
	stream := h.Register("u-bob")

	valid, err := json.Marshal(like())
	require.NoError(t, err)

	reader := &scriptedReader{
		errs: []error{errors.New("broker restarting")},
		messages: []kafka.Message{
			{Offset: 1, Value: []byte("{broken")},
			{Offset: 2, Value: []byte(`{"type":"share"}`)},
			{Offset: 3, Value: valid},
		},
	}
	c := &Consumer{reader: reader, handler: handler, logger: zap.NewNop().Sugar(), retryDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case payload := <-stream.Events():
		var n model.Notification
		require.NoError(t, json.Unmarshal(payload, &n))
		assert.Equal(t, "u-bob", n.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("activity was not delivered")
	}

	// Invalid activities are committed so they are not redelivered.
	require.Eventually(t, func() bool { return len(reader.commits()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, reader.commits())

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

// flakyHandler fails a number of times before accepting.
type flakyHandler struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyHandler) Handle(ctx context.Context, a Activity) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("database is locked")
	}
	return &model.Notification{ID: "n1"}, nil
}

func TestConsumerCommitsOnlyAfterHandling(t *testing.T) {
	valid, err := json.Marshal(like())
	require.NoError(t, err)

	reader := &scriptedReader{messages: []kafka.Message{{Offset: 7, Value: valid}}}
	handler := &flakyHandler{failures: 2}
	c := &Consumer{reader: reader, handler: handler, logger: zap.NewNop().Sugar(), retryDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []int64{7}, reader.commits())

	handler.mu.Lock()
	assert.Equal(t, 3, handler.calls)
	handler.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}

func TestConsumerLeavesOffsetOnShutdown(t *testing.T) {
	valid, err := json.Marshal(like())
	require.NoError(t, err)

	reader := &scriptedReader{messages: []kafka.Message{{Offset: 9, Value: valid}}}
	handler := &flakyHandler{failures: 1 << 30}
	c := &Consumer{reader: reader, handler: handler, logger: zap.NewNop().Sugar(), retryDelay: time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return handler.calls > 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, reader.commits())
}
