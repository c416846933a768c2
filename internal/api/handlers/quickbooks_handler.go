package handlers

import (
	"net/http"
	"strings"

	"github.com/isdelr/qb-categorizer-be/internal/services"
	"github.com/rs/zerolog/log"
)

// QuickBooksHandler handles connecting and disconnecting QuickBooks companies.
type QuickBooksHandler struct {
	clients services.ClientServiceProvider
	users   services.UserServiceProvider
	appURL  string
}

// NewQuickBooksHandler creates a new QuickBooksHandler. appURL is the frontend
// the OAuth callback redirects back to.
func NewQuickBooksHandler(clients services.ClientServiceProvider, users services.UserServiceProvider, appURL string) *QuickBooksHandler {
	return &QuickBooksHandler{clients: clients, users: users, appURL: strings.TrimRight(appURL, "/")}
}

// ClientIDPayload names a connected company.
type ClientIDPayload struct {
	ClientID string `json:"clientId" validate:"required"`
}

// Connect returns the Intuit consent URL for the caller.
func (h *QuickBooksHandler) Connect(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	authURL, err := h.clients.ConnectURL(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err, "Failed to initiate QuickBooks connection")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

// Callback completes the OAuth flow and sends the browser back to the dashboard.
func (h *QuickBooksHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if oauthErr := q.Get("error"); oauthErr != "" {
		log.Warn().Str("error", oauthErr).Msg("QuickBooks authorization was declined")
		h.redirect(w, r, "error=quickbooks_connection_failed")
		return
	}

	client, err := h.clients.CompleteConnection(r.Context(), q.Get("state"), q.Get("code"), q.Get("realmId"))
	if err != nil {
		log.Error().Err(err).Str("realm_id", q.Get("realmId")).Msg("QuickBooks callback failed")
		h.redirect(w, r, "error=quickbooks_connection_failed")
		return
	}

	log.Info().Str("client_id", client.ID).Str("realm_id", client.QBRealmID).Msg("QuickBooks company connected")
	h.redirect(w, r, "success=client_connected")
}

func (h *QuickBooksHandler) redirect(w http.ResponseWriter, r *http.Request, query string) {
	http.Redirect(w, r, h.appURL+"/dashboard?"+query, http.StatusFound)
}

// Disconnect removes a company and everything imported for it.
func (h *QuickBooksHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	var payload ClientIDPayload
	if !decode(w, r, &payload) {
		return
	}

	if err := h.clients.Disconnect(r.Context(), user.ID, payload.ClientID); err != nil {
		writeError(w, r, err, "Client not found or unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "QuickBooks disconnected successfully"})
}
