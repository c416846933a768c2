package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/qb-categorizer-be/internal/database"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/vault"
	"github.com/isdelr/qb-categorizer-be/internal/vector"
)

// MockQuickBooks is a mock implementation of QuickBooksAPI.
type MockQuickBooks struct {
	mock.Mock
}

func (m *MockQuickBooks) AuthCodeURL(state string) string {
	return m.Called(state).String(0)
}

func (m *MockQuickBooks) Exchange(ctx context.Context, code string) (quickbooks.Token, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(quickbooks.Token), args.Error(1)
}

func (m *MockQuickBooks) Refresh(ctx context.Context, refreshToken string) (quickbooks.Token, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(quickbooks.Token), args.Error(1)
}

func (m *MockQuickBooks) Revoke(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockQuickBooks) CompanyInfo(ctx context.Context, s quickbooks.Session) (quickbooks.CompanyInfo, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(quickbooks.CompanyInfo), args.Error(1)
}

func (m *MockQuickBooks) FetchUncategorizedPurchases(ctx context.Context, s quickbooks.Session, start, end time.Time) ([]quickbooks.Purchase, error) {
	args := m.Called(ctx, s, start, end)
	purchases, _ := args.Get(0).([]quickbooks.Purchase)
	return purchases, args.Error(1)
}

func (m *MockQuickBooks) FetchAccounts(ctx context.Context, s quickbooks.Session) ([]quickbooks.Account, error) {
	args := m.Called(ctx, s)
	accounts, _ := args.Get(0).([]quickbooks.Account)
	return accounts, args.Error(1)
}

func (m *MockQuickBooks) FetchClasses(ctx context.Context, s quickbooks.Session) ([]quickbooks.Class, error) {
	args := m.Called(ctx, s)
	classes, _ := args.Get(0).([]quickbooks.Class)
	return classes, args.Error(1)
}

func (m *MockQuickBooks) UpdatePurchaseCategory(ctx context.Context, s quickbooks.Session, purchaseID string, account quickbooks.Ref, class *quickbooks.Ref) error {
	return m.Called(ctx, s, purchaseID, account, class).Error(0)
}

// MockLanguageModel is a mock implementation of LanguageModel.
type MockLanguageModel struct {
	mock.Mock
}

func (m *MockLanguageModel) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	v, _ := args.Get(0).([]float32)
	return v, args.Error(1)
}

func (m *MockLanguageModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	args := m.Called(ctx, system, prompt)
	return args.String(0), args.Error(1)
}

// MockVectorIndex is a mock implementation of VectorIndex.
type MockVectorIndex struct {
	mock.Mock
}

func (m *MockVectorIndex) Upsert(ctx context.Context, vectors []vector.Vector) error {
	return m.Called(ctx, vectors).Error(0)
}

func (m *MockVectorIndex) Query(ctx context.Context, clientID string, values []float32, topK int) ([]vector.Match, error) {
	args := m.Called(ctx, clientID, values, topK)
	matches, _ := args.Get(0).([]vector.Match)
	return matches, args.Error(1)
}

func (m *MockVectorIndex) Delete(ctx context.Context, ids []string) error {
	return m.Called(ctx, ids).Error(0)
}

// plainCipher marks values as encrypted without real cryptography.
type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (plainCipher) Decrypt(s string) (string, error) {
	v, ok := strings.CutPrefix(s, "enc:")
	if !ok {
		return "", vault.ErrDecrypt
	}
	return v, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	actions  []string
	payloads []any
}

func (n *recordingNotifier) Publish(clientID, action string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, clientID+":"+action)
	n.payloads = append(n.payloads, payload)
}

// updatedTransactions returns the transactions published as updates, in order.
func (n *recordingNotifier) updatedTransactions() []models.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Transaction
	for _, p := range n.payloads {
		if t, ok := p.(models.Transaction); ok {
			out = append(out, t)
		}
	}
	return out
}

func (n *recordingNotifier) Actions() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.actions...)
}

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, authID string) models.User {
	t.Helper()
	user, err := NewUserService(db, nil).UpsertUser(authID, authID+"@example.com", "Test "+authID)
	require.NoError(t, err)
	return user
}

func seedClient(t *testing.T, db *sql.DB, userID, realmID string, expiry time.Time) models.Client {
	t.Helper()
	id := uuid.New().String()
	_, err := db.Exec(`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, 'enc:access', 'enc:refresh', ?, NULL, 'sandbox', 1, NULL, ?)`,
		id, userID, "Company "+realmID, realmID, expiry.UTC(), time.Now().UTC())
	require.NoError(t, err)
	client, err := scanClient(db.QueryRow("SELECT "+clientColumns+" FROM clients WHERE id = ?", id))
	require.NoError(t, err)
	return client
}

func seedReferenceData(t *testing.T, db *sql.DB, clientID string) {
	t.Helper()
	for _, a := range []struct{ qbID, name string }{{"7", "Office Supplies"}, {"8", "Meals and Entertainment"}} {
		_, err := db.Exec("INSERT INTO qb_accounts (id, client_id, qb_id, name, fully_qualified_name, account_type, active) VALUES (?, ?, ?, ?, ?, 'Expense', 1)",
			uuid.New().String(), clientID, a.qbID, a.name, a.name)
		require.NoError(t, err)
	}
	_, err := db.Exec("INSERT INTO qb_accounts (id, client_id, qb_id, name, account_type, active) VALUES (?, ?, '99', 'Old Account', 'Expense', 0)",
		uuid.New().String(), clientID)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO qb_classes (id, client_id, qb_id, name, active) VALUES (?, ?, 'c1', 'Retail', 1)", uuid.New().String(), clientID)
	require.NoError(t, err)
}

type txSeed struct {
	qbID        string
	status      models.TransactionStatus
	aiAccountID string
	aiClassID   string
	description string
	date        time.Time
}

func seedTransaction(t *testing.T, db *sql.DB, clientID string, s txSeed) string {
	t.Helper()
	if s.status == "" {
		s.status = models.StatusPending
	}
	if s.date.IsZero() {
		s.date = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	}
	if s.description == "" {
		s.description = "Printer paper"
	}
	var aiName *string
	var score *float64
	if s.aiAccountID != "" {
		name := "Office Supplies"
		aiName = &name
		conf := 0.92
		score = &conf
	}
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO transactions (id, client_id, qb_id, qb_type, date, amount, description, vendor,
			ai_account_id, ai_account_name, ai_class_id, ai_confidence_score, status, created_at, updated_at)
		VALUES (?, ?, ?, 'Purchase', ?, '42.50', ?, 'Staples', ?, ?, ?, ?, ?, ?, ?)`,
		id, clientID, s.qbID, s.date, s.description, models.StringPtr(s.aiAccountID), aiName, models.StringPtr(s.aiClassID), score, s.status, now, now)
	require.NoError(t, err)
	return id
}
