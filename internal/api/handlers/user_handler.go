package handlers

import (
	"net/http"

	"github.com/isdelr/qb-categorizer-be/internal/services"
)

// UserHandler handles HTTP requests about the signed-in user.
type UserHandler struct {
	service services.UserServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.UserServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// GetMe retrieves the currently authenticated user from the token.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.service)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}
