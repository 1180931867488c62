package store

import (
	"context"
	"errors"

	"github.com/nhle/blogbell/internal/model"
)

// ErrNotFound is returned when a notification does not exist for the
// requesting member.
var ErrNotFound = errors.New("notification not found")

// Store defines the server's persistence interface for notifications.
// Every read and write is scoped to the owning member.
type Store interface {
	// CreateNotification inserts n, assigning an id and creation time
	// when they are empty.
	CreateNotification(ctx context.Context, n *model.Notification) error

	// ListNotifications returns a page of the member's notifications,
	// newest first.
	ListNotifications(ctx context.Context, userID string, limit, offset int) ([]model.Notification, error)

	CountUnread(ctx context.Context, userID string) (int, error)

	// CountNotifications returns the size of the member's history.
	CountNotifications(ctx context.Context, userID string) (int, error)

	// MarkRead marks one notification read. Marking a read notification
	// again succeeds.
	MarkRead(ctx context.Context, userID, id string) error

	// MarkAllRead marks every notification of the member read and
	// returns how many changed.
	MarkAllRead(ctx context.Context, userID string) (int64, error)

	Close() error
}
