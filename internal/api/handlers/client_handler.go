package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/services"
)

// ClientHandler handles HTTP requests for connected companies and their data.
type ClientHandler struct {
	clients      services.ClientServiceProvider
	transactions services.TransactionServiceProvider
	users        services.UserServiceProvider
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(clients services.ClientServiceProvider, transactions services.TransactionServiceProvider, users services.UserServiceProvider) *ClientHandler {
	return &ClientHandler{clients: clients, transactions: transactions, users: users}
}

// GetAll lists the caller's clients with review counters.
func (h *ClientHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return
	}
	clients, err := h.clients.GetClientsWithStats(user.ID)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve clients")
		return
	}
	writeJSON(w, http.StatusOK, clients)
}

// Get returns one client.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	client, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, client)
}

// GetAccounts returns the client's cached chart of accounts.
func (h *ClientHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	client, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	accounts, err := h.clients.GetAccounts(client.ID)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetClasses returns the client's cached classes.
func (h *ClientHandler) GetClasses(w http.ResponseWriter, r *http.Request) {
	client, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	classes, err := h.clients.GetClasses(client.ID)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve classes")
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

// GetTransactions lists the client's transactions, optionally filtered by ?status=.
func (h *ClientHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	client, ok := h.ownedClient(w, r)
	if !ok {
		return
	}
	status := models.TransactionStatus(r.URL.Query().Get("status"))
	transactions, err := h.transactions.GetTransactions(client.ID, status)
	if err != nil {
		writeError(w, r, err, "Failed to retrieve transactions")
		return
	}
	writeJSON(w, http.StatusOK, transactions)
}

func (h *ClientHandler) ownedClient(w http.ResponseWriter, r *http.Request) (models.Client, bool) {
	user, ok := currentUser(w, r, h.users)
	if !ok {
		return models.Client{}, false
	}
	client, err := h.clients.GetClientForUser(user.ID, chi.URLParam(r, "clientId"))
	if err != nil {
		writeError(w, r, err, "Client not found or unauthorized")
		return models.Client{}, false
	}
	return client, true
}
