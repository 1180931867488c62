package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/model"
)

// Publisher announces a stored notification to whichever server instance
// holds the member's stream.
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// LocalBroker delivers straight to an in-process hub. It is used when
// only one server instance runs.
type LocalBroker struct {
	hub *Hub
}

// NewLocalBroker returns a Publisher backed by h.
func NewLocalBroker(h *Hub) *LocalBroker {
	return &LocalBroker{hub: h}
}

// Publish implements Publisher.
func (b *LocalBroker) Publish(_ context.Context, n model.Notification) error {
	_, err := b.hub.Send(n)
	return err
}

// envelope is the Redis message body.
type envelope struct {
	UserID  string          `json:"user_id"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker fans notifications out to every server instance over a
// Redis pub/sub channel; each instance forwards them to its local hub.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.SugaredLogger
}

// NewRedisBroker creates a broker on channel.
func NewRedisBroker(client *redis.Client, channel string, h *Hub, logger *zap.SugaredLogger) *RedisBroker {
	return &RedisBroker{
		client:  client,
		channel: channel,
		hub:     h,
		logger:  logger,
	}
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification %s: %w", n.ID, err)
	}

	body, err := json.Marshal(envelope{UserID: n.UserID, Payload: payload})
	if err != nil {
		return fmt.Errorf("encoding envelope: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel and forwards messages to the local hub
// until ctx is cancelled.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}
	b.logger.Infow("listening for notifications", "channel", b.channel)

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			b.forward(msg.Payload)
		}
	}
}

func (b *RedisBroker) forward(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.UserID == "" {
		b.logger.Warnw("skipping malformed broker message", "error", err)
		return
	}
	b.hub.SendRaw(env.UserID, env.Payload)
}
