package handlers

import (
	"net/http"

	"github.com/isdelr/qb-categorizer-be/internal/services"
)

// DashboardHandler serves the summary figures on the dashboard.
type DashboardHandler struct {
	service services.DashboardServiceProvider
	users   services.UserServiceProvider
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(service services.DashboardServiceProvider, users services.UserServiceProvider) *DashboardHandler {
	return &DashboardHandler{service: service, users: users}
}

// GetStats returns the caller's dashboard statistics.
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	stats, err := h.service.GetDashboardStats(user.ID)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve dashboard stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
