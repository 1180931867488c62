// Package server is the notification server: REST history and read
// acknowledgements, a server-sent event stream per member, and an
// activity endpoint that creates notifications.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/nhle/blogbell/internal/hub"
	"github.com/nhle/blogbell/internal/ingest"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/store"
)

// Server wires the HTTP surface to storage and the push hub.
type Server struct {
	cfg      *model.ServerConfig
	store    store.Store
	hub      *hub.Hub
	activity *ingest.Handler
	limiter  *ipRateLimiter
	logger   *zap.SugaredLogger

	engine  *gin.Engine
	handler http.Handler
}

// New builds the router. Set gin's mode before calling it.
func New(
	cfg *model.ServerConfig,
	st store.Store,
	h *hub.Hub,
	activity *ingest.Handler,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:      cfg,
		store:    st,
		hub:      h,
		activity: activity,
		limiter:  newIPRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		logger:   logger,
		engine:   gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}).Handler(s.engine)

	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1", s.rateLimit(), s.requireAuth())
	{
		notifications := v1.Group("/notifications")
		notifications.GET("", s.handleList)
		notifications.GET("/unread-count", s.handleUnreadCount)
		notifications.GET("/history", s.handleHistory)
		notifications.PUT("/read-all", s.handleMarkAllRead)
		notifications.PUT("/:id/read", s.handleMarkRead)
		notifications.GET("/stream", s.handleStream)

		v1.POST("/activity", s.handleActivity)
	}
}

// Handler returns the CORS-wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.sweepVisitors(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("notification server listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Streams never finish on their own.
	srv.RegisterOnShutdown(s.hub.CloseAll)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) sweepVisitors(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.limiter.sweep(now)
		}
	}
}

// requestLogger logs each request with zap.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Infow("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}

// abortError writes the JSON error body used by every endpoint.
func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
