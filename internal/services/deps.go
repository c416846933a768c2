package services

import (
	"context"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/vector"
)

// QuickBooksAPI is the subset of the QuickBooks client the services use.
type QuickBooksAPI interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (quickbooks.Token, error)
	Refresh(ctx context.Context, refreshToken string) (quickbooks.Token, error)
	Revoke(ctx context.Context, token string) error
	CompanyInfo(ctx context.Context, s quickbooks.Session) (quickbooks.CompanyInfo, error)
	FetchUncategorizedPurchases(ctx context.Context, s quickbooks.Session, start, end time.Time) ([]quickbooks.Purchase, error)
	FetchAccounts(ctx context.Context, s quickbooks.Session) ([]quickbooks.Account, error)
	FetchClasses(ctx context.Context, s quickbooks.Session) ([]quickbooks.Class, error)
	UpdatePurchaseCategory(ctx context.Context, s quickbooks.Session, purchaseID string, account quickbooks.Ref, class *quickbooks.Ref) error
}

// LanguageModel produces embeddings and chat completions.
type LanguageModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// VectorIndex stores learning example embeddings.
type VectorIndex interface {
	Upsert(ctx context.Context, vectors []vector.Vector) error
	Query(ctx context.Context, clientID string, values []float32, topK int) ([]vector.Match, error)
	Delete(ctx context.Context, ids []string) error
}

// TokenCipher encrypts OAuth tokens at rest.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Notifier pushes live updates to review screens watching a client.
type Notifier interface {
	Publish(clientID, action string, payload any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, any) {}
