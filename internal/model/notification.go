package model

import (
	"fmt"
	"time"
)

// NotificationType identifies the activity that produced a notification.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
)

// Actor is the member whose activity triggered a notification.
type Actor struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// Initial returns the first letter of the actor's name, or "?" when the
// actor is unknown.
func (a *Actor) Initial() string {
	if a == nil || a.Name == "" {
		return "?"
	}
	for _, r := range a.Name {
		return string(r)
	}
	return "?"
}

// Target is the resource a notification points at.
type Target struct {
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id,omitempty"`
}

// Notification represents one event directed at a member.
type Notification struct {
	// ID is the server-assigned identifier, unique per member.
	ID string `json:"id"`

	// UserID is the member the notification is addressed to.
	UserID string `json:"user_id,omitempty"`

	// Type identifies the triggering activity.
	Type NotificationType `json:"type"`

	// Actor is the member who triggered the event. Nil when the actor
	// has been deleted or is otherwise unknown.
	Actor *Actor `json:"actor,omitempty"`

	// Target is used for click-through navigation.
	Target Target `json:"target"`

	// Message is either plain display text or a codec-encoded sentence.
	Message string `json:"message"`

	// IsRead only ever transitions from false to true.
	IsRead bool `json:"is_read"`

	// CreatedAt is when the server recorded the notification.
	CreatedAt time.Time `json:"created_at"`
}

// Link returns the path a client should navigate to when the
// notification is opened.
func (n Notification) Link() string {
	if n.Target.PostID == "" {
		return ""
	}
	path := fmt.Sprintf("/posts/%s", n.Target.PostID)
	if n.Type == NotificationComment {
		path += "#comments"
	}
	return path
}

// HistoryPage is one numbered page of a member's full history.
type HistoryPage struct {
	Items      []Notification `json:"items"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
}

// TotalPages returns how many pages of limit items hold total
// notifications. An empty history still has one (empty) page.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 1
	}
	return (total + limit - 1) / limit
}

// Page is one page of notification history together with the member's
// unread count at the time the page was fetched.
type Page struct {
	Items  []Notification
	Unread int
}
