package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/services"
)

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestWriteError_MapsSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("client x: %w", services.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("tx: %w", services.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("synced: %w", services.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("bad: %w", services.ErrValidation), http.StatusBadRequest},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, "Something failed")

			assert.Equal(t, tt.want, rr.Code)
			body := decodeBody[ErrorResponse](t, rr)
			assert.Equal(t, "Something failed", body.Error)
			assert.Equal(t, tt.err.Error(), body.Details)
		})
	}
}

func TestUserHandler_GetMe(t *testing.T) {
	t.Run("known user", func(t *testing.T) {
		h := NewUserHandler(knownUser())
		rr := httptest.NewRecorder()
		h.GetMe(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), "user_1"))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ada@example.com", decodeBody[models.User](t, rr).Email)
	})

	t.Run("unknown user", func(t *testing.T) {
		users := new(MockUserService)
		users.On("GetUserByAuthID", "ghost").Return(models.User{}, fmt.Errorf("user ghost: %w", services.ErrNotFound))
		rr := httptest.NewRecorder()
		NewUserHandler(users).GetMe(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), "ghost"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewUserHandler(new(MockUserService)).GetMe(rr, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestQuickBooksHandler_Connect(t *testing.T) {
	clients := new(MockClientService)
	clients.On("ConnectURL", mock.Anything, "u-1").Return("https://appcenter.intuit.com/connect/oauth2?state=abc", nil)
	h := NewQuickBooksHandler(clients, knownUser(), "http://localhost:3000/")

	rr := httptest.NewRecorder()
	h.Connect(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/quickbooks/connect", nil), "user_1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://appcenter.intuit.com/connect/oauth2?state=abc", decodeBody[map[string]string](t, rr)["authUrl"])
}

func TestQuickBooksHandler_Callback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		setup    func(*MockClientService)
		location string
	}{
		{
			name:  "success",
			query: "code=c&realmId=r&state=s",
			setup: func(m *MockClientService) {
				m.On("CompleteConnection", mock.Anything, "s", "c", "r").Return(models.Client{ID: "client-1", QBRealmID: "r"}, nil)
			},
			location: "http://localhost:3000/dashboard?success=client_connected",
		},
		{
			name:  "exchange failure",
			query: "code=c&realmId=r&state=s",
			setup: func(m *MockClientService) {
				m.On("CompleteConnection", mock.Anything, "s", "c", "r").Return(models.Client{}, errors.New("invalid_grant"))
			},
			location: "http://localhost:3000/dashboard?error=quickbooks_connection_failed",
		},
		{
			name:     "declined",
			query:    "error=access_denied&state=s",
			setup:    func(*MockClientService) {},
			location: "http://localhost:3000/dashboard?error=quickbooks_connection_failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clients := new(MockClientService)
			tt.setup(clients)
			h := NewQuickBooksHandler(clients, new(MockUserService), "http://localhost:3000")

			rr := httptest.NewRecorder()
			h.Callback(rr, httptest.NewRequest(http.MethodGet, "/api/v1/quickbooks/callback?"+tt.query, nil))

			assert.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, tt.location, rr.Header().Get("Location"))
			clients.AssertExpectations(t)
		})
	}
}

func TestQuickBooksHandler_Disconnect(t *testing.T) {
	t.Run("owned client", func(t *testing.T) {
		clients := new(MockClientService)
		clients.On("Disconnect", mock.Anything, "u-1", "client-1").Return(nil)
		h := NewQuickBooksHandler(clients, knownUser(), "http://localhost:3000")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quickbooks/disconnect", strings.NewReader(`{"clientId":"client-1"}`))
		h.Disconnect(rr, withClaims(req, "user_1"))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, decodeBody[map[string]any](t, rr)["success"])
	})

	t.Run("foreign client", func(t *testing.T) {
		clients := new(MockClientService)
		clients.On("Disconnect", mock.Anything, "u-1", "client-2").Return(fmt.Errorf("client client-2: %w", services.ErrNotFound))
		h := NewQuickBooksHandler(clients, knownUser(), "http://localhost:3000")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quickbooks/disconnect", strings.NewReader(`{"clientId":"client-2"}`))
		h.Disconnect(rr, withClaims(req, "user_1"))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Client not found or unauthorized", decodeBody[ErrorResponse](t, rr).Error)
	})

	t.Run("missing client id", func(t *testing.T) {
		h := NewQuickBooksHandler(new(MockClientService), knownUser(), "http://localhost:3000")
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/quickbooks/disconnect", strings.NewReader(`{}`))
		h.Disconnect(rr, withClaims(req, "user_1"))

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestClientHandler_Routes(t *testing.T) {
	clients := new(MockClientService)
	transactions := new(MockTransactionService)
	h := NewClientHandler(clients, transactions, knownUser())

	client := models.Client{ID: "client-1", UserID: "u-1", Name: "Acme"}
	clients.On("GetClientForUser", "u-1", "client-1").Return(client, nil)
	clients.On("GetClientForUser", "u-1", "client-2").Return(models.Client{}, fmt.Errorf("client client-2: %w", services.ErrNotFound))
	clients.On("GetAccounts", "client-1").Return([]models.QBAccount{{QBID: "7", Name: "Office Supplies"}}, nil)
	transactions.On("GetTransactions", "client-1", models.StatusPending).Return([]models.Transaction{{ID: "t-1"}}, nil)
	transactions.On("GetTransactions", "client-1", models.TransactionStatus("BOGUS")).Return(nil, fmt.Errorf("unknown status: %w", services.ErrValidation))

	r := chi.NewRouter()
	r.Get("/clients/{clientId}", h.Get)
	r.Get("/clients/{clientId}/accounts", h.GetAccounts)
	r.Get("/clients/{clientId}/transactions", h.GetTransactions)

	tests := []struct {
		path string
		want int
	}{
		{"/clients/client-1", http.StatusOK},
		{"/clients/client-2", http.StatusNotFound},
		{"/clients/client-1/accounts", http.StatusOK},
		{"/clients/client-2/accounts", http.StatusNotFound},
		{"/clients/client-1/transactions?status=PENDING", http.StatusOK},
		{"/clients/client-1/transactions?status=BOGUS", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, withClaims(httptest.NewRequest(http.MethodGet, tt.path, nil), "user_1"))
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

type transactionHandlerFixture struct {
	clients      *MockClientService
	transactions *MockTransactionService
	categorizer  *MockCategorizationService
	pusher       *MockQuickBooksSyncService
	handler      *TransactionHandler
	client       models.Client
}

func newTransactionHandlerFixture() *transactionHandlerFixture {
	f := &transactionHandlerFixture{
		clients:      new(MockClientService),
		transactions: new(MockTransactionService),
		categorizer:  new(MockCategorizationService),
		pusher:       new(MockQuickBooksSyncService),
		client:       models.Client{ID: "client-1", UserID: "u-1"},
	}
	f.clients.On("GetClientForUser", "u-1", "client-1").Return(f.client, nil)
	f.clients.On("GetClientForUser", "u-1", "client-2").Return(models.Client{}, fmt.Errorf("client client-2: %w", services.ErrNotFound))
	f.handler = NewTransactionHandler(f.clients, f.transactions, f.categorizer, f.pusher, knownUser(), 90)
	return f
}

func post(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	handler(rr, withClaims(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "user_1"))
	return rr
}

func TestTransactionHandler_Sync(t *testing.T) {
	t.Run("explicit window", func(t *testing.T) {
		f := newTransactionHandlerFixture()
		start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
		f.transactions.On("SyncTransactions", mock.Anything, f.client, start, end).
			Return(models.SyncResult{Success: true, TransactionsFetched: 3, TransactionsStored: 2, TransactionsSkipped: 1, Message: "Successfully synced 2 new transactions"}, nil)

		rr := post(t, f.handler.Sync, `{"clientId":"client-1","startDate":"2024-03-01","endDate":"2024-03-31"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		result := decodeBody[models.SyncResult](t, rr)
		assert.Equal(t, 2, result.TransactionsStored)
		assert.Equal(t, 1, result.TransactionsSkipped)
	})

	t.Run("default lookback", func(t *testing.T) {
		f := newTransactionHandlerFixture()
		f.transactions.On("SyncTransactions", mock.Anything, f.client, mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).
			Return(models.SyncResult{Success: true}, nil)

		rr := post(t, f.handler.Sync, `{"clientId":"client-1"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		call := f.transactions.Calls[0]
		start, end := call.Arguments.Get(2).(time.Time), call.Arguments.Get(3).(time.Time)
		assert.Equal(t, 90*24*time.Hour, end.Sub(start))
		assert.WithinDuration(t, time.Now(), end, time.Minute)
	})

	t.Run("invalid date", func(t *testing.T) {
		f := newTransactionHandlerFixture()
		rr := post(t, f.handler.Sync, `{"clientId":"client-1","startDate":"March 1st"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		f.transactions.AssertNotCalled(t, "SyncTransactions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("foreign client", func(t *testing.T) {
		f := newTransactionHandlerFixture()
		rr := post(t, f.handler.Sync, `{"clientId":"client-2"}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestTransactionHandler_Categorize(t *testing.T) {
	f := newTransactionHandlerFixture()
	f.categorizer.On("CategorizeTransactions", mock.Anything, f.client, []string{"t-1", "t-2"}).Return(models.CategorizeResult{
		Success:     true,
		Categorized: 1,
		Failed:      1,
		Results:     []models.CategorizationOutcome{{TransactionID: "t-1", Success: true}},
		Errors:      []models.ItemError{{TransactionID: "t-2", Error: "model timeout"}},
	}, nil)

	rr := post(t, f.handler.Categorize, `{"clientId":"client-1","transactionIds":["t-1","t-2"]}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	result := decodeBody[models.CategorizeResult](t, rr)
	assert.Equal(t, 1, result.Categorized)
	assert.Equal(t, "t-2", result.Errors[0].TransactionID)
}

func TestTransactionHandler_CategorizationStatus(t *testing.T) {
	f := newTransactionHandlerFixture()
	f.transactions.On("GetCategorizationStatus", "client-1").Return(models.CategorizationStatus{ClientID: "client-1", Uncategorized: 4, Total: 9}, nil)

	rr := httptest.NewRecorder()
	f.handler.CategorizationStatus(rr, withClaims(httptest.NewRequest(http.MethodGet, "/?clientId=client-1", nil), "user_1"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4, decodeBody[models.CategorizationStatus](t, rr).Uncategorized)

	rr = httptest.NewRecorder()
	f.handler.CategorizationStatus(rr, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), "user_1"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransactionHandler_Approve(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		input services.ReviewInput
		err   error
		want  int
	}{
		{
			name:  "approve with override",
			body:  `{"transactionId":"t-1","approved":true,"accountId":"8"}`,
			input: services.ReviewInput{TransactionID: "t-1", Approved: true, AccountID: "8"},
			want:  http.StatusOK,
		},
		{
			name:  "reject",
			body:  `{"transactionId":"t-1","approved":false}`,
			input: services.ReviewInput{TransactionID: "t-1"},
			want:  http.StatusOK,
		},
		{
			name:  "foreign transaction",
			body:  `{"transactionId":"t-9","approved":true}`,
			input: services.ReviewInput{TransactionID: "t-9", Approved: true},
			err:   services.ErrForbidden,
			want:  http.StatusForbidden,
		},
		{
			name:  "already synced",
			body:  `{"transactionId":"t-5","approved":false}`,
			input: services.ReviewInput{TransactionID: "t-5"},
			err:   services.ErrInvalidState,
			want:  http.StatusConflict,
		},
		{
			name: "missing decision",
			body: `{"transactionId":"t-1"}`,
			want: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTransactionHandlerFixture()
			if tt.input.TransactionID != "" {
				f.transactions.On("ReviewTransaction", mock.Anything, "u-1", tt.input).
					Return(models.Transaction{ID: tt.input.TransactionID, Status: models.StatusApproved}, tt.err)
			}

			rr := post(t, f.handler.Approve, tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
			f.transactions.AssertExpectations(t)
		})
	}
}

func TestTransactionHandler_SyncToQuickBooks(t *testing.T) {
	f := newTransactionHandlerFixture()
	f.pusher.On("PushToQuickBooks", mock.Anything, f.client, []string(nil)).Return(models.PushResult{
		Success: true, Synced: 2, ErrorDetails: []models.ItemError{}, Message: "Successfully synced 2 transactions to QuickBooks",
	}, nil)

	rr := post(t, f.handler.SyncToQuickBooks, `{"clientId":"client-1"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, decodeBody[models.PushResult](t, rr).Synced)
}

func TestWebhookHandler_Auth(t *testing.T) {
	created := `{"type":"user.created","data":{"id":"user_1","first_name":"Ada","last_name":"Lovelace","email_addresses":[{"email_address":"ada@example.com"}]}}`
	anonymous := `{"type":"user.updated","data":{"id":"user_2","email_addresses":[]}}`
	deleted := `{"type":"user.deleted","data":{"id":"user_3","deleted":true}}`

	tests := []struct {
		name      string
		body      string
		verifyErr error
		setup     func(*MockUserService)
		want      int
	}{
		{
			name: "user created",
			body: created,
			setup: func(m *MockUserService) {
				m.On("UpsertUser", "user_1", "ada@example.com", "Ada Lovelace").Return(testUser, nil)
			},
			want: http.StatusOK,
		},
		{
			name: "user updated without a name",
			body: anonymous,
			setup: func(m *MockUserService) {
				m.On("UpsertUser", "user_2", "", "User").Return(models.User{}, nil)
			},
			want: http.StatusOK,
		},
		{
			name: "user deleted",
			body: deleted,
			setup: func(m *MockUserService) {
				m.On("DeleteUserByAuthID", mock.Anything, "user_3").Return(errors.New("database is locked"))
			},
			want: http.StatusOK,
		},
		{
			name:      "bad signature",
			body:      created,
			verifyErr: errors.New("auth: no matching webhook signature"),
			setup:     func(*MockUserService) {},
			want:      http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserService)
			tt.setup(users)
			verifier := new(MockWebhookVerifier)
			verifier.On("Verify", mock.Anything, []byte(tt.body)).Return(tt.verifyErr)

			rr := httptest.NewRecorder()
			NewWebhookHandler(verifier, users).Auth(rr, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/auth", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"received":true}`, rr.Body.String())
			}
			users.AssertExpectations(t)
		})
	}
}

func TestEventHandler_GetRecent(t *testing.T) {
	events := new(MockEventService)
	events.On("GetRecentEvents", "u-1", 100).Return([]models.Event{{ID: "e-1", Type: services.EventClientConnected}}, nil)

	rr := httptest.NewRecorder()
	NewEventHandler(events, knownUser()).GetRecent(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/events?limit=5000", nil), "user_1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeBody[[]models.Event](t, rr), 1)
}

func TestDashboardHandler_GetStats(t *testing.T) {
	dashboard := new(MockDashboardService)
	dashboard.On("GetDashboardStats", "u-1").Return(models.DashboardStats{TotalClients: 2, TimeSavedHours: 1.5, OverallAccuracy: 87.5}, nil)

	rr := httptest.NewRecorder()
	NewDashboardHandler(dashboard, knownUser()).GetStats(rr, withClaims(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/stats", nil), "user_1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"totalClients":2,"pendingTransactions":0,"timeSavedHours":1.5,"overallAccuracy":87.5}`, rr.Body.String())
}
