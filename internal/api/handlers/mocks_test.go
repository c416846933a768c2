package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"

	"github.com/isdelr/qb-categorizer-be/internal/auth"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/services"
)

// MockUserService is a mock implementation of UserServiceProvider.
type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) GetUserByAuthID(authID string) (models.User, error) {
	args := m.Called(authID)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserService) UpsertUser(authID, email, name string) (models.User, error) {
	args := m.Called(authID, email, name)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockUserService) DeleteUserByAuthID(ctx context.Context, authID string) error {
	return m.Called(ctx, authID).Error(0)
}

// MockClientService is a mock implementation of ClientServiceProvider.
type MockClientService struct {
	mock.Mock
}

func (m *MockClientService) ConnectURL(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockClientService) CompleteConnection(ctx context.Context, state, code, realmID string) (models.Client, error) {
	args := m.Called(ctx, state, code, realmID)
	return args.Get(0).(models.Client), args.Error(1)
}

func (m *MockClientService) GetClientsWithStats(userID string) ([]models.ClientWithStats, error) {
	args := m.Called(userID)
	clients, _ := args.Get(0).([]models.ClientWithStats)
	return clients, args.Error(1)
}

func (m *MockClientService) GetClientForUser(userID, clientID string) (models.Client, error) {
	args := m.Called(userID, clientID)
	return args.Get(0).(models.Client), args.Error(1)
}

func (m *MockClientService) GetActiveClients() ([]models.Client, error) {
	args := m.Called()
	clients, _ := args.Get(0).([]models.Client)
	return clients, args.Error(1)
}

func (m *MockClientService) Disconnect(ctx context.Context, userID, clientID string) error {
	return m.Called(ctx, userID, clientID).Error(0)
}

func (m *MockClientService) Session(ctx context.Context, client models.Client) (quickbooks.Session, error) {
	args := m.Called(ctx, client)
	return args.Get(0).(quickbooks.Session), args.Error(1)
}

func (m *MockClientService) RefreshReferenceData(ctx context.Context, client models.Client, session quickbooks.Session) error {
	return m.Called(ctx, client, session).Error(0)
}

func (m *MockClientService) GetAccounts(clientID string) ([]models.QBAccount, error) {
	args := m.Called(clientID)
	accounts, _ := args.Get(0).([]models.QBAccount)
	return accounts, args.Error(1)
}

func (m *MockClientService) GetClasses(clientID string) ([]models.QBClass, error) {
	args := m.Called(clientID)
	classes, _ := args.Get(0).([]models.QBClass)
	return classes, args.Error(1)
}

func (m *MockClientService) MarkSynced(clientID string, at time.Time) error {
	return m.Called(clientID, at).Error(0)
}

// MockTransactionService is a mock implementation of TransactionServiceProvider.
type MockTransactionService struct {
	mock.Mock
}

func (m *MockTransactionService) SyncTransactions(ctx context.Context, client models.Client, start, end time.Time) (models.SyncResult, error) {
	args := m.Called(ctx, client, start, end)
	return args.Get(0).(models.SyncResult), args.Error(1)
}

func (m *MockTransactionService) GetTransactions(clientID string, status models.TransactionStatus) ([]models.Transaction, error) {
	args := m.Called(clientID, status)
	transactions, _ := args.Get(0).([]models.Transaction)
	return transactions, args.Error(1)
}

func (m *MockTransactionService) GetTransactionForUser(userID, transactionID string) (models.Transaction, error) {
	args := m.Called(userID, transactionID)
	return args.Get(0).(models.Transaction), args.Error(1)
}

func (m *MockTransactionService) GetCategorizationStatus(clientID string) (models.CategorizationStatus, error) {
	args := m.Called(clientID)
	return args.Get(0).(models.CategorizationStatus), args.Error(1)
}

func (m *MockTransactionService) ReviewTransaction(ctx context.Context, userID string, input services.ReviewInput) (models.Transaction, error) {
	args := m.Called(ctx, userID, input)
	return args.Get(0).(models.Transaction), args.Error(1)
}

// MockCategorizationService is a mock implementation of CategorizationServiceProvider.
type MockCategorizationService struct {
	mock.Mock
}

func (m *MockCategorizationService) CategorizeTransaction(ctx context.Context, t models.Transaction) (models.CategorizationOutcome, error) {
	args := m.Called(ctx, t)
	return args.Get(0).(models.CategorizationOutcome), args.Error(1)
}

func (m *MockCategorizationService) CategorizeTransactions(ctx context.Context, client models.Client, ids []string) (models.CategorizeResult, error) {
	args := m.Called(ctx, client, ids)
	return args.Get(0).(models.CategorizeResult), args.Error(1)
}

// MockQuickBooksSyncService is a mock implementation of QuickBooksSyncServiceProvider.
type MockQuickBooksSyncService struct {
	mock.Mock
}

func (m *MockQuickBooksSyncService) PushToQuickBooks(ctx context.Context, client models.Client, ids []string) (models.PushResult, error) {
	args := m.Called(ctx, client, ids)
	return args.Get(0).(models.PushResult), args.Error(1)
}

// MockEventService is a mock implementation of EventServiceProvider.
type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) CreateEvent(eventType, level, message string, userID, clientID *string) error {
	return m.Called(eventType, level, message, userID, clientID).Error(0)
}

func (m *MockEventService) GetRecentEvents(userID string, limit int) ([]models.Event, error) {
	args := m.Called(userID, limit)
	events, _ := args.Get(0).([]models.Event)
	return events, args.Error(1)
}

// MockDashboardService is a mock implementation of DashboardServiceProvider.
type MockDashboardService struct {
	mock.Mock
}

func (m *MockDashboardService) GetDashboardStats(userID string) (models.DashboardStats, error) {
	args := m.Called(userID)
	return args.Get(0).(models.DashboardStats), args.Error(1)
}

// MockWebhookVerifier is a mock implementation of WebhookVerifier.
type MockWebhookVerifier struct {
	mock.Mock
}

func (m *MockWebhookVerifier) Verify(h http.Header, body []byte) error {
	return m.Called(h, body).Error(0)
}

var testUser = models.User{ID: "u-1", AuthID: "user_1", Email: "ada@example.com", Name: "Ada"}

// withClaims attaches the claims JWTMiddleware would store for authID.
func withClaims(r *http.Request, authID string) *http.Request {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: authID}}
	return r.WithContext(context.WithValue(r.Context(), auth.UserClaimsKey, claims))
}

func knownUser() *MockUserService {
	users := new(MockUserService)
	users.On("GetUserByAuthID", testUser.AuthID).Return(testUser, nil)
	return users
}
