package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/rs/zerolog/log"
)

const maxWebhookBody = 1 << 20

// WebhookVerifier checks the signature of an incoming webhook.
type WebhookVerifier interface {
	Verify(h http.Header, body []byte) error
}

// WebhookHandler mirrors auth provider user lifecycle events into the users table.
type WebhookHandler struct {
	verifier WebhookVerifier
	users    services.UserServiceProvider
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(verifier WebhookVerifier, users services.UserServiceProvider) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, users: users}
}

type authEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e authEvent) email() string {
	if len(e.Data.EmailAddresses) == 0 {
		return ""
	}
	return e.Data.EmailAddresses[0].EmailAddress
}

func (e authEvent) name() string {
	if name := strings.TrimSpace(e.Data.FirstName + " " + e.Data.LastName); name != "" {
		return name
	}
	return "User"
}

// Auth handles user.created, user.updated and user.deleted events. Once the
// signature checks out the provider always gets 200, so processing failures
// are only logged.
func (h *WebhookHandler) Auth(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}
	if err := h.verifier.Verify(r.Header, body); err != nil {
		log.Warn().Err(err).Msg("Rejected auth webhook")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid signature", Details: err.Error()})
		return
	}

	var evt authEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body", Details: err.Error()})
		return
	}

	switch evt.Type {
	case "user.created", "user.updated":
		if _, err := h.users.UpsertUser(evt.Data.ID, evt.email(), evt.name()); err != nil {
			log.Error().Err(err).Str("auth_id", evt.Data.ID).Str("type", evt.Type).Msg("Failed to store user from webhook")
		} else {
			log.Info().Str("auth_id", evt.Data.ID).Str("type", evt.Type).Msg("User stored from webhook")
		}
	case "user.deleted":
		if err := h.users.DeleteUserByAuthID(r.Context(), evt.Data.ID); err != nil {
			log.Error().Err(err).Str("auth_id", evt.Data.ID).Msg("Failed to delete user from webhook")
		} else {
			log.Info().Str("auth_id", evt.Data.ID).Msg("User deleted from webhook")
		}
	default:
		log.Debug().Str("type", evt.Type).Msg("Ignoring auth webhook event")
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
