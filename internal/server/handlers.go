package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nhle/blogbell/internal/ingest"
	"github.com/nhle/blogbell/internal/model"
	"github.com/nhle/blogbell/internal/store"
)

const (
	defaultLimit = 20
	maxLimit     = 100

	defaultHistoryLimit = 10
)

// pageParams reads limit and offset, falling back to defaults for
// missing or invalid values.
func pageParams(c *gin.Context) (limit, offset int) {
	limit, offset = defaultLimit, 0
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func (s *Server) handleList(c *gin.Context) {
	limit, offset := pageParams(c)

	items, err := s.store.ListNotifications(c.Request.Context(), currentUser(c), limit, offset)
	if err != nil {
		s.logger.Errorw("listing notifications failed", "error", err)
		abortError(c, http.StatusInternalServerError, "could not list notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// handleHistory serves numbered pages of the member's full history.
// page starts at 1; invalid values fall back to the defaults.
func (s *Server) handleHistory(c *gin.Context) {
	page, limit := 1, defaultHistoryLimit
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, maxLimit)
	}

	ctx := c.Request.Context()
	userID := currentUser(c)

	total, err := s.store.CountNotifications(ctx, userID)
	if err != nil {
		s.logger.Errorw("counting notifications failed", "error", err)
		abortError(c, http.StatusInternalServerError, "could not list notifications")
		return
	}

	items, err := s.store.ListNotifications(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		s.logger.Errorw("listing notification history failed", "page", page, "error", err)
		abortError(c, http.StatusInternalServerError, "could not list notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": model.HistoryPage{
		Items:      items,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: model.TotalPages(total, limit),
	}})
}

func (s *Server) handleUnreadCount(c *gin.Context) {
	count, err := s.store.CountUnread(c.Request.Context(), currentUser(c))
	if err != nil {
		s.logger.Errorw("counting unread notifications failed", "error", err)
		abortError(c, http.StatusInternalServerError, "could not count notifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"count": count}})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id := c.Param("id")

	err := s.store.MarkRead(c.Request.Context(), currentUser(c), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		abortError(c, http.StatusNotFound, "notification not found")
		return
	case err != nil:
		s.logger.Errorw("marking notification read failed", "id", id, "error", err)
		abortError(c, http.StatusInternalServerError, "could not mark notification read")
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	if _, err := s.store.MarkAllRead(c.Request.Context(), currentUser(c)); err != nil {
		s.logger.Errorw("marking all notifications read failed", "error", err)
		abortError(c, http.StatusInternalServerError, "could not mark notifications read")
		return
	}

	c.Status(http.StatusNoContent)
}

// activityRequest is the body of POST /v1/activity. The actor is always
// the authenticated member.
type activityRequest struct {
	Type         string `json:"type" binding:"required"`
	ActorName    string `json:"actor_name"`
	ActorPicture string `json:"actor_picture"`
	PostID       string `json:"post_id" binding:"required"`
	PostTitle    string `json:"post_title"`
	PostOwnerID  string `json:"post_owner_id" binding:"required"`
	CommentID    string `json:"comment_id"`
}

func (s *Server) handleActivity(c *gin.Context) {
	var req activityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid activity body")
		return
	}

	n, err := s.activity.Handle(c.Request.Context(), ingest.Activity{
		Type:         model.NotificationType(req.Type),
		ActorID:      currentUser(c),
		ActorName:    req.ActorName,
		ActorPicture: req.ActorPicture,
		PostID:       req.PostID,
		PostTitle:    req.PostTitle,
		PostOwnerID:  req.PostOwnerID,
		CommentID:    req.CommentID,
	})
	switch {
	case errors.Is(err, ingest.ErrInvalidActivity):
		abortError(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Errorw("recording activity failed", "error", err)
		abortError(c, http.StatusInternalServerError, "could not record activity")
		return
	case n == nil:
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"data": n})
}
