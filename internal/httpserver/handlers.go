package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cascadehub/notify/internal/apperr"
	"github.com/cascadehub/notify/internal/database"
	"github.com/cascadehub/notify/internal/logging"
	"github.com/cascadehub/notify/internal/notification"
)

type handlers struct {
	svc   *notification.Service
	db    *database.DB
	queue notification.RetryQueue
}

// createNotificationRequest is the wire shape accepted by
// POST /api/v1/notifications.
type createNotificationRequest struct {
	Recipient      string            `json:"recipient" binding:"required"`
	Message        string            `json:"message" binding:"required"`
	Channels       []string          `json:"channels" binding:"required,min=1"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey *string           `json:"idempotency_key"`
}

func (h *handlers) createNotification(c *gin.Context) {
	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apperr.Validation("body", err.Error()))
		return
	}

	channels := make([]notification.Channel, 0, len(req.Channels))
	for _, ch := range req.Channels {
		tag := notification.Channel(ch)
		switch tag {
		case notification.ChannelEmail, notification.ChannelSMS, notification.ChannelTelegram:
			channels = append(channels, tag)
		default:
			renderError(c, apperr.Validation("channels", "unknown channel: "+ch))
			return
		}
	}

	n, err := h.svc.CreateAndSend(c.Request.Context(), notification.CreateRequest{
		Recipient:      req.Recipient,
		Message:        req.Message,
		Channels:       channels,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		if errors.Is(err, notification.ErrConflict) {
			renderError(c, apperr.Conflict("idempotency key already in use"))
			return
		}
		renderError(c, apperr.Internal("failed to create notification", err))
		return
	}

	c.JSON(http.StatusCreated, toResponse(n))
}

func (h *handlers) getNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		renderError(c, apperr.Validation("id", "must be a UUID"))
		return
	}

	n, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			renderError(c, apperr.NotFound("notification"))
			return
		}
		renderError(c, apperr.Internal("failed to load notification", err))
		return
	}

	c.JSON(http.StatusOK, toResponse(n))
}

// queueStats exposes the retry stream's backlog for operability.
func (h *handlers) queueStats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		renderError(c, apperr.Queue("stats", err))
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) health(c *gin.Context) {
	if err := h.db.Health(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "degraded",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// notificationResponse mirrors Notification's JSON shape without the
// metadata field; it exists so attempts render as [] rather than null for a
// brand new notification with none yet.
type notificationResponse struct {
	ID          uuid.UUID              `json:"id"`
	Recipient   string                 `json:"recipient"`
	Message     string                 `json:"message"`
	Status      notification.Status    `json:"status"`
	ChannelUsed *notification.Channel  `json:"channel_used"`
	Attempts    []notification.Attempt `json:"attempts"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func toResponse(n *notification.Notification) notificationResponse {
	attempts := n.Attempts
	if attempts == nil {
		attempts = []notification.Attempt{}
	}
	return notificationResponse{
		ID:          n.ID,
		Recipient:   n.Recipient,
		Message:     n.Message,
		Status:      n.Status,
		ChannelUsed: n.ChannelUsed,
		Attempts:    attempts,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func renderError(c *gin.Context, appErr *apperr.AppError) {
	appErr.CorrelationID = logging.CorrelationID(c.Request.Context())
	c.JSON(appErr.HTTPStatus, appErr)
}
