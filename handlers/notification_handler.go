package handlers

import (
	"net/http"
	"strconv"

	"github.com/ohshane/p3bl-sub002/middleware"
	"github.com/ohshane/p3bl-sub002/services"
)

type NotificationHandler struct {
	notifications *services.NotificationService
}

func NewNotificationHandler(notifications *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List godoc
// @Summary Notifications of the current user, newest first
// @Tags notifications
// @Produce json
// @Param limit query int false "Max items (default 50)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			errorResponse(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	list, err := h.notifications.ListForUser(r.Context(), userID, limit)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"notifications": list}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
