// Package ingest turns blog activity (likes and comments) into stored
// notifications and announces them to live streams.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/hub"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/store"
)

// ErrInvalidActivity is returned for activities missing required fields
// or of an unsupported type.
var ErrInvalidActivity = errors.New("invalid activity")

// Activity is something a member did to a post.
type Activity struct {
	Type         model.NotificationType `json:"type"`
	ActorID      string                 `json:"actor_id"`
	ActorName    string                 `json:"actor_name"`
	ActorPicture string                 `json:"actor_picture,omitempty"`
	PostID       string                 `json:"post_id"`
	PostTitle    string                 `json:"post_title"`
	PostOwnerID  string                 `json:"post_owner_id"`
	CommentID    string                 `json:"comment_id,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at,omitempty"`
}

var actions = map[model.NotificationType]string{
	model.NotificationLike:    "liked your post",
	model.NotificationComment: "commented on your post",
}

// Validate checks the activity's required fields.
func (a Activity) Validate() error {
	if _, ok := actions[a.Type]; !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidActivity, a.Type)
	}
	switch {
	case a.ActorID == "":
		return fmt.Errorf("%w: actor_id is required", ErrInvalidActivity)
	case a.PostID == "":
		return fmt.Errorf("%w: post_id is required", ErrInvalidActivity)
	case a.PostOwnerID == "":
		return fmt.Errorf("%w: post_owner_id is required", ErrInvalidActivity)
	}
	return nil
}

// Handler stores one notification per activity and publishes it.
type Handler struct {
	store     store.Store
	publisher hub.Publisher
	logger    *zap.SugaredLogger
}

// NewHandler creates a Handler.
func NewHandler(s store.Store, p hub.Publisher, logger *zap.SugaredLogger) *Handler {
	return &Handler{store: s, publisher: p, logger: logger}
}

// Handle records a notification for the post owner. It returns nil
// without error when the actor acted on their own post.
func (h *Handler) Handle(ctx context.Context, a Activity) (*model.Notification, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if a.ActorID == a.PostOwnerID {
		return nil, nil
	}

	actorName := a.ActorName
	if actorName == "" {
		actorName = "Someone"
	}

	n := &model.Notification{
		UserID: a.PostOwnerID,
		Type:   a.Type,
		Actor: &model.Actor{
			ID:             a.ActorID,
			Name:           a.ActorName,
			ProfilePicture: a.ActorPicture,
		},
		Target: model.Target{
			PostID: a.PostID,
		},
		Message:   codec.Encode(actorName, actions[a.Type], a.PostTitle),
		CreatedAt: a.OccurredAt,
	}
	if a.Type == model.NotificationComment {
		n.Target.CommentID = a.CommentID
	}

	if err := h.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("storing %s notification: %w", a.Type, err)
	}

	// The notification is already in history; a failed push only delays it.
	if err := h.publisher.Publish(ctx, *n); err != nil {
		h.logger.Warnw("publishing notification failed", "id", n.ID, "user_id", n.UserID, "error", err)
	}

	h.logger.Debugw("notification created", "id", n.ID, "type", n.Type, "user_id", n.UserID)
	return n, nil
}
