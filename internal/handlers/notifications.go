package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/services"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

const maxNotificationPageSize = 100

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, errors.New("HANDLER_CONFIG", "notification service is required", http.StatusInternalServerError)
	}
	return &NotificationHandler{service: service}, nil
}

// List returns notifications for the current user.
func (h *NotificationHandler) List(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	limit := parseIntQuery(c, "limit", 25)
	if limit <= 0 || limit > maxNotificationPageSize {
		limit = maxNotificationPageSize
	}
	offset := parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	items, total, err := h.service.ListForUser(requestContext(c), services.ListNotificationsInput{
		UserID:     actor.ID,
		UnreadOnly: strings.EqualFold(c.Query("unread"), "true"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{Total: int(total)})
}

// MarkRead flags a notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	item, err := h.service.MarkRead(requestContext(c), actor.ID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}
