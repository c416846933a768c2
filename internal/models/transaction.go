package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the review state of an imported transaction.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusApproved TransactionStatus = "APPROVED"
	StatusEdited   TransactionStatus = "EDITED" // Approved with a reviewer override
	StatusRejected TransactionStatus = "REJECTED"
	StatusSynced   TransactionStatus = "SYNCED"
	StatusError    TransactionStatus = "ERROR"
)

// Valid reports whether s is a known status.
func (s TransactionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusEdited, StatusRejected, StatusSynced, StatusError:
		return true
	}
	return false
}

// Transaction is a QuickBooks transaction imported for review.
type Transaction struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"clientId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// QuickBooks data
	QBID        string          `json:"qbId"`
	QBType      string          `json:"qbType"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description,omitempty"`
	Vendor      *string         `json:"vendor,omitempty"`
	Customer    *string         `json:"customer,omitempty"`
	Memo        *string         `json:"memo,omitempty"`

	// Original QuickBooks categorization
	OriginalAccountID   *string `json:"originalAccountId,omitempty"`
	OriginalAccountName *string `json:"originalAccountName,omitempty"`
	OriginalClassID     *string `json:"originalClassId,omitempty"`
	OriginalClassName   *string `json:"originalClassName,omitempty"`

	// AI suggestion
	AIAccountID       *string  `json:"aiAccountId,omitempty"`
	AIAccountName     *string  `json:"aiAccountName,omitempty"`
	AIClassID         *string  `json:"aiClassId,omitempty"`
	AIClassName       *string  `json:"aiClassName,omitempty"`
	AIConfidenceScore *float64 `json:"aiConfidenceScore,omitempty"`
	AIConfidenceLevel string   `json:"aiConfidenceLevel,omitempty"` // Derived, not stored
	AIReasoningNotes  *string  `json:"aiReasoningNotes,omitempty"`

	// Review
	Status     TransactionStatus `json:"status"`
	ReviewedAt *time.Time        `json:"reviewedAt,omitempty"`

	// Final categorization
	FinalAccountID   *string `json:"finalAccountId,omitempty"`
	FinalAccountName *string `json:"finalAccountName,omitempty"`
	FinalClassID     *string `json:"finalClassId,omitempty"`
	FinalClassName   *string `json:"finalClassName,omitempty"`

	// Sync back to QuickBooks
	SyncedToQB bool       `json:"syncedToQb"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
	SyncError  *string    `json:"syncError,omitempty"`
}

// Categorized reports whether the AI has produced a suggestion.
func (t *Transaction) Categorized() bool {
	return t.AIAccountID != nil && *t.AIAccountID != ""
}

// SearchText is the text embedded for similarity lookups.
func (t *Transaction) SearchText() string {
	return EmbeddingText(StringValue(t.Description), StringValue(t.Vendor))
}

// EmbeddingText joins a description and vendor into the text sent to the embedding model.
func EmbeddingText(description, vendor string) string {
	return strings.TrimSpace(description + " " + vendor)
}

// ConfidenceLevel buckets a confidence score into "high", "medium" or "low".
func ConfidenceLevel(score, high, medium float64) string {
	switch {
	case score >= high:
		return "high"
	case score >= medium:
		return "medium"
	default:
		return "low"
	}
}

// StringValue dereferences a nullable string.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for empty strings, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
