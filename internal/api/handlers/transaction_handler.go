package handlers

import (
	"net/http"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/services"
)

const dateLayout = "2006-01-02"

// TransactionHandler handles import, categorization, review and write-back of transactions.
type TransactionHandler struct {
	clients      services.ClientServiceProvider
	transactions services.TransactionServiceProvider
	categorizer  services.CategorizationServiceProvider
	pusher       services.QuickBooksSyncServiceProvider
	users        services.UserServiceProvider
	lookbackDays int
}

// NewTransactionHandler creates a new TransactionHandler. lookbackDays is the
// default import window when a sync request names no start date.
func NewTransactionHandler(
	clients services.ClientServiceProvider,
	transactions services.TransactionServiceProvider,
	categorizer services.CategorizationServiceProvider,
	pusher services.QuickBooksSyncServiceProvider,
	users services.UserServiceProvider,
	lookbackDays int,
) *TransactionHandler {
	return &TransactionHandler{
		clients:      clients,
		transactions: transactions,
		categorizer:  categorizer,
		pusher:       pusher,
		users:        users,
		lookbackDays: lookbackDays,
	}
}

// SyncPayload is the body of POST /transactions/sync.
type SyncPayload struct {
	ClientID  string `json:"clientId" validate:"required"`
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
}

// BatchPayload selects transactions of a client. No IDs means the default selection.
type BatchPayload struct {
	ClientID       string   `json:"clientId" validate:"required"`
	TransactionIDs []string `json:"transactionIds" validate:"omitempty,dive,required"`
}

// ApprovePayload is the body of POST /transactions/approve.
type ApprovePayload struct {
	TransactionID string `json:"transactionId" validate:"required"`
	Approved      *bool  `json:"approved" validate:"required"`
	AccountID     string `json:"accountId"`
	ClassID       string `json:"classId"`
}

// Sync imports uncategorized purchases from QuickBooks.
func (h *TransactionHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var payload SyncPayload
	if !decode(w, r, &payload) {
		return
	}
	client, ok := h.ownedClient(w, r, payload.ClientID)
	if !ok {
		return
	}

	end := time.Now().UTC()
	if payload.EndDate != "" {
		end, _ = time.Parse(dateLayout, payload.EndDate)
	}
	start := end.AddDate(0, 0, -h.lookbackDays)
	if payload.StartDate != "" {
		start, _ = time.Parse(dateLayout, payload.StartDate)
	}

	result, err := h.transactions.SyncTransactions(r.Context(), client, start, end)
	if err != nil {
		writeError(w, r, err, "Failed to sync transactions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Categorize runs AI categorization over a client's transactions.
func (h *TransactionHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	var payload BatchPayload
	if !decode(w, r, &payload) {
		return
	}
	client, ok := h.ownedClient(w, r, payload.ClientID)
	if !ok {
		return
	}

	result, err := h.categorizer.CategorizeTransactions(r.Context(), client, payload.TransactionIDs)
	if err != nil {
		writeError(w, r, err, "Failed to categorize transactions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CategorizationStatus returns per-status counts for ?clientId=.
func (h *TransactionHandler) CategorizationStatus(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Client ID is required"})
		return
	}
	client, ok := h.ownedClient(w, r, clientID)
	if !ok {
		return
	}

	status, err := h.transactions.GetCategorizationStatus(client.ID)
	if err != nil {
		writeError(w, r, err, "Failed to get categorization status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Approve records a reviewer's decision on one transaction.
func (h *TransactionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	var payload ApprovePayload
	if !decode(w, r, &payload) {
		return
	}

	transaction, err := h.transactions.ReviewTransaction(r.Context(), user.ID, services.ReviewInput{
		TransactionID: payload.TransactionID,
		Approved:      *payload.Approved,
		AccountID:     payload.AccountID,
		ClassID:       payload.ClassID,
	})
	if err != nil {
		writeError(w, r, err, "Failed to review transaction")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "transaction": transaction})
}

// SyncToQuickBooks writes approved categorizations back to QuickBooks.
func (h *TransactionHandler) SyncToQuickBooks(w http.ResponseWriter, r *http.Request) {
	var payload BatchPayload
	if !decode(w, r, &payload) {
		return
	}
	client, ok := h.ownedClient(w, r, payload.ClientID)
	if !ok {
		return
	}

	result, err := h.pusher.PushToQuickBooks(r.Context(), client, payload.TransactionIDs)
	if err != nil {
		writeError(w, r, err, "Failed to sync to QuickBooks")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *TransactionHandler) ownedClient(w http.ResponseWriter, r *http.Request, clientID string) (models.Client, bool) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return models.Client{}, false
	}
	client, err := h.clients.GetClientForUser(user.ID, clientID)
	if err != nil {
		writeError(w, r, err, "Client not found or unauthorized")
		return models.Client{}, false
	}
	return client, true
}
