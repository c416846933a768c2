package services

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/isdelr/qb-categorizer-be/internal/models"
)

const transactionColumns = `id, client_id, qb_id, qb_type, date, amount, description, vendor, customer, memo,
	original_account_id, original_account_name, original_class_id, original_class_name,
	ai_account_id, ai_account_name, ai_class_id, ai_class_name, ai_confidence_score, ai_reasoning_notes,
	status, reviewed_at, final_account_id, final_account_name, final_class_id, final_class_name,
	synced_to_qb, synced_at, sync_error, created_at, updated_at`

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.ClientID, &t.QBID, &t.QBType, &t.Date, &t.Amount, &t.Description, &t.Vendor, &t.Customer, &t.Memo,
		&t.OriginalAccountID, &t.OriginalAccountName, &t.OriginalClassID, &t.OriginalClassName,
		&t.AIAccountID, &t.AIAccountName, &t.AIClassID, &t.AIClassName, &t.AIConfidenceScore, &t.AIReasoningNotes,
		&t.Status, &t.ReviewedAt, &t.FinalAccountID, &t.FinalAccountName, &t.FinalClassID, &t.FinalClassName,
		&t.SyncedToQB, &t.SyncedAt, &t.SyncError, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// thresholds derives the confidence level exposed on transactions.
type thresholds struct {
	high, medium float64
}

func (th thresholds) apply(t *models.Transaction) {
	if t.AIConfidenceScore != nil && th.high > 0 {
		t.AIConfidenceLevel = models.ConfidenceLevel(*t.AIConfidenceScore, th.high, th.medium)
	}
}

func queryTransactions(db *sql.DB, th thresholds, query string, args ...any) ([]models.Transaction, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		th.apply(&t)
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func getTransaction(db *sql.DB, th thresholds, id string) (models.Transaction, error) {
	t, err := scanTransaction(db.QueryRow("SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Transaction{}, fmt.Errorf("transaction %s: %w", id, ErrNotFound)
		}
		return models.Transaction{}, err
	}
	th.apply(&t)
	return t, nil
}

// inClause returns "?, ?, ?" for n placeholders and the values as []any.
func inClause(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", "), args
}

func lookupAccount(db *sql.DB, clientID, qbID string) (models.QBAccount, error) {
	var a models.QBAccount
	err := db.QueryRow("SELECT id, client_id, qb_id, name, account_type FROM qb_accounts WHERE client_id = ? AND qb_id = ?", clientID, qbID).
		Scan(&a.ID, &a.ClientID, &a.QBID, &a.Name, &a.AccountType)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("account %s is not in the client's chart of accounts: %w", qbID, ErrValidation)
	}
	return a, err
}

func lookupClass(db *sql.DB, clientID, qbID string) (models.QBClass, error) {
	var c models.QBClass
	err := db.QueryRow("SELECT id, client_id, qb_id, name FROM qb_classes WHERE client_id = ? AND qb_id = ?", clientID, qbID).
		Scan(&c.ID, &c.ClientID, &c.QBID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("class %s is not defined for the client: %w", qbID, ErrValidation)
	}
	return c, err
}
