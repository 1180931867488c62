package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

// handleStream holds a server-sent event stream open for the member. It
// pings immediately and then every ping interval, and forwards queued
// notifications. Each session of a member holds its own stream.
func (s *Server) handleStream(c *gin.Context) {
	userID := currentUser(c)
	client := s.hub.Register(userID)
	defer s.hub.Unregister(client)

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	s.logger.Infow("notification stream opened", "user_id", userID)
	defer s.logger.Infow("notification stream closed", "user_id", userID)

	if err := writeEvent(c, "ping", pingData()); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.Push.PingInterval())
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case payload := <-client.Events():
			if err := writeEvent(c, "notification", string(payload)); err != nil {
				s.logger.Debugw("writing notification event failed", "user_id", userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := writeEvent(c, "ping", pingData()); err != nil {
				return
			}
		}
	}
}

func pingData() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

func writeEvent(c *gin.Context, name, data string) error {
	if err := sse.Encode(c.Writer, sse.Event{Event: name, Data: data}); err != nil {
		return fmt.Errorf("encoding %s event: %w", name, err)
	}
	c.Writer.Flush()
	return nil
}
