// Package session assembles the per-sign-in notification components:
// REST client, live channel and store. A Session is created at sign-in
// and closed at sign-out; nothing outlives it.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/api"
	"github.com/nhle/blogbell/internal/credential"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/notify"
	"github.com/nhle/blogbell/internal/stream"
)

// Session is one signed-in member's notification context.
type Session struct {
	Client  *api.Client
	Channel *stream.Manager
	Store   *notify.Store
	History *notify.Archive
}

// Open wires the components and signs the store in. The session is
// returned even when the first history fetch fails; the error is meant
// for a transient notice and the channel keeps running.
func Open(ctx context.Context, cfg *model.AppConfig, creds credential.Provider, logger *zap.SugaredLogger) (*Session, error) {
	s := &Session{}

	s.Client = api.NewClient(cfg.Server.BaseURL, creds, logger.Named("api"))
	s.Channel = stream.NewManager(stream.Options{
		BaseURL:           cfg.Server.BaseURL,
		RefreshAfter:      cfg.Stream.RefreshAfter(),
		ReconnectDelay:    cfg.Stream.ReconnectDelay(),
		MaxReconnectDelay: cfg.Stream.MaxReconnectDelay(),
		OnStateChange: func(state stream.State) {
			s.Store.SetLive(state == stream.StateOpen)
		},
	}, creds, logger.Named("stream"))
	s.Store = notify.NewStore(s.Client, s.Client, s.Channel, notify.Options{
		PageSize:   cfg.Notifications.PageSize,
		ReadPolicy: cfg.Notifications.ReadPolicy,
	}, logger.Named("notify"))
	s.History = notify.NewArchive(s.Client, s.Store, cfg.Notifications.HistoryPageSize)

	return s, s.Store.SignIn(ctx)
}

// Close signs the store out, which also stops the channel.
func (s *Session) Close() {
	s.Store.SignOut()
}
