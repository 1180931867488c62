// Package digest renders unread notifications as an RFC 5322 message
// that can be piped into a mail transfer agent.
package digest

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/blogbell/internal/codec"
	"github.com/nhle/blogbell/internal/model"
)

// DefaultFrom is the sender used when Options.From is empty.
const DefaultFrom = "blogbell <noreply@blogbell.local>"

// Options addresses the digest.
type Options struct {
	From string
	To   string
	// Now anchors relative times; zero means time.Now.
	Now time.Time
}

// Write renders the unread entries of items. Read entries are skipped.
func Write(w io.Writer, items []model.Notification, opts Options) error {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	from, err := mail.ParseAddress(orDefault(opts.From, DefaultFrom))
	if err != nil {
		return fmt.Errorf("parsing sender address: %w", err)
	}
	to, err := mail.ParseAddress(opts.To)
	if err != nil {
		return fmt.Errorf("parsing recipient address: %w", err)
	}

	var unread []model.Notification
	for _, n := range items {
		if !n.IsRead {
			unread = append(unread, n)
		}
	}

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(subject(len(unread)))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	if err := h.GenerateMessageID(); err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}

	body, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return fmt.Errorf("creating digest writer: %w", err)
	}

	if _, err := io.WriteString(body, render(unread, now)); err != nil {
		body.Close()
		return fmt.Errorf("writing digest body: %w", err)
	}

	if err := body.Close(); err != nil {
		return fmt.Errorf("finishing digest: %w", err)
	}
	return nil
}

func subject(n int) string {
	switch n {
	case 0:
		return "No unread notifications"
	case 1:
		return "1 unread notification"
	default:
		return fmt.Sprintf("%s unread notifications", humanize.Comma(int64(n)))
	}
}

func render(unread []model.Notification, now time.Time) string {
	if len(unread) == 0 {
		return "You're all caught up.\r\n"
	}

	var b strings.Builder
	for _, n := range unread {
		fmt.Fprintf(&b, "* %s (%s)", codec.Render(n.Message), humanize.RelTime(n.CreatedAt, now, "ago", "from now"))
		if link := n.Link(); link != "" {
			fmt.Fprintf(&b, "\r\n  %s", link)
		}
		b.WriteString("\r\n")
	}
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
