package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/model"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// activityHandler is satisfied by *Handler.
type activityHandler interface {
	Handle(ctx context.Context, a Activity) (*model.Notification, error)
}

// Consumer reads activities from a Kafka topic and hands them to a
// Handler one at a time, so a member's notifications keep topic order.
// An offset is committed only once its activity is stored or found
// invalid; other failures are retried in place.
type Consumer struct {
	reader     messageReader
	handler    activityHandler
	logger     *zap.SugaredLogger
	retryDelay time.Duration
}

// NewConsumer creates a consumer-group reader on topic.
func NewConsumer(brokers []string, topic, groupID string, handler *Handler, logger *zap.SugaredLogger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, handler: handler, logger: logger, retryDelay: time.Second}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warnw("kafka fetch failed", "error", err)
			if !c.wait(ctx) {
				return nil
			}
			continue
		}

		if !c.deliver(ctx, m) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warnw("kafka commit failed",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		}
	}
}

// deliver processes m until it is handled or dropped as invalid. It
// returns false when ctx ends first.
func (c *Consumer) deliver(ctx context.Context, m kafka.Message) bool {
	for {
		err := c.process(ctx, m)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrInvalidActivity) {
			c.logger.Warnw("skipping activity",
				"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
			return true
		}

		c.logger.Warnw("activity failed, retrying",
			"topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		if !c.wait(ctx) {
			return false
		}
	}
}

func (c *Consumer) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.retryDelay):
		return true
	}
}

func (c *Consumer) process(ctx context.Context, m kafka.Message) error {
	var a Activity
	if err := json.Unmarshal(m.Value, &a); err != nil {
		return fmt.Errorf("%w: decoding: %v", ErrInvalidActivity, err)
	}

	_, err := c.handler.Handle(ctx, a)
	if errors.Is(err, ErrInvalidActivity) {
		return err
	}
	if err != nil {
		return fmt.Errorf("handling activity: %w", err)
	}
	return nil
}

// Close releases the reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
