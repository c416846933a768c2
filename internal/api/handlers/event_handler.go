package handlers

import (
	"net/http"
	"strconv"

	"github.com/isdelr/qb-categorizer-be/internal/services"
)

const maxEventLimit = 100

// EventHandler handles HTTP requests related to the activity log.
type EventHandler struct {
	service services.EventServiceProvider
	users   services.UserServiceProvider
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(service services.EventServiceProvider, users services.UserServiceProvider) *EventHandler {
	return &EventHandler{service: service, users: users}
}

// GetRecent handles the request to get the caller's recent activity.
func (h *EventHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 20 // Default limit
	}
	limit = min(limit, maxEventLimit)

	events, err := h.service.GetRecentEvents(user.ID, limit)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve events")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
