package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/blogbell/internal/model"
)

// unreadCount is the payload of GET /v1/notifications/unread-count.
type unreadCount struct {
	Count int `json:"count"`
}

// ListNotifications returns one page of the member's notifications,
// newest first.
func (c *Client) ListNotifications(ctx context.Context, limit, offset int) ([]model.Notification, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var items []model.Notification
	if err := c.get(ctx, "/v1/notifications?"+q.Encode(), &items); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	if items == nil {
		items = []model.Notification{}
	}
	return items, nil
}

// UnreadCount returns the member's total unread notification count.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var out unreadCount
	if err := c.get(ctx, "/v1/notifications/unread-count", &out); err != nil {
		return 0, fmt.Errorf("fetching unread count: %w", err)
	}
	return out.Count, nil
}

// FetchPage returns a page of history together with the unread count.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) (*model.Page, error) {
	items, err := c.ListNotifications(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	count, err := c.UnreadCount(ctx)
	if err != nil {
		return nil, err
	}

	return &model.Page{Items: items, Unread: count}, nil
}

// History returns one numbered page of the member's full history,
// with the total used for paging. page starts at 1.
func (c *Client) History(ctx context.Context, page, limit int) (*model.HistoryPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out model.HistoryPage
	if err := c.get(ctx, "/v1/notifications/history?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("loading history page %d: %w", page, err)
	}
	if out.Items == nil {
		out.Items = []model.Notification{}
	}
	return &out, nil
}

// MarkRead acknowledges a single notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if err := c.put(ctx, "/v1/notifications/"+url.PathEscape(id)+"/read", nil); err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// MarkAllRead acknowledges every notification of the member as read.
func (c *Client) MarkAllRead(ctx context.Context) error {
	if err := c.put(ctx, "/v1/notifications/read-all", nil); err != nil {
		return fmt.Errorf("marking all notifications as read: %w", err)
	}
	return nil
}
