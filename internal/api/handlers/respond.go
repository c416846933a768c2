package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/isdelr/qb-categorizer-be/internal/auth"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/rs/zerolog/log"
)

var validate = validator.New()

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps service sentinel errors to HTTP statuses. Unexpected errors
// are logged and returned as 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, services.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	}
	writeJSON(w, status, ErrorResponse{Error: msg, Details: err.Error()})
}

// decode reads a JSON body into dst and runs its validate tags.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Details: err.Error()})
		return false
	}
	return true
}

// currentUser resolves the authenticated caller to a local user.
func currentUser(w http.ResponseWriter, r *http.Request, users services.UserServiceProvider) (models.User, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		log.Error().Msg("Could not retrieve user claims from context")
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return models.User{}, false
	}
	user, err := users.GetUserByAuthID(claims.AuthID())
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			log.Warn().Str("auth_id", claims.AuthID()).Msg("Authenticated user has no local record")
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "User not found"})
			return models.User{}, false
		}
		writeError(w, r, err, "Failed to load user")
		return models.User{}, false
	}
	return user, true
}
