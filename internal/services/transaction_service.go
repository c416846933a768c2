package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// ReviewInput is a reviewer's decision on an AI suggestion.
type ReviewInput struct {
	TransactionID string
	Approved      bool
	AccountID     string // Optional override of the suggested account
	ClassID       string // Optional override of the suggested class
}

// TransactionServiceProvider defines the interface for transaction services.
type TransactionServiceProvider interface {
	SyncTransactions(ctx context.Context, client models.Client, start, end time.Time) (models.SyncResult, error)
	GetTransactions(clientID string, status models.TransactionStatus) ([]models.Transaction, error)
	GetTransactionForUser(userID, transactionID string) (models.Transaction, error)
	GetCategorizationStatus(clientID string) (models.CategorizationStatus, error)
	ReviewTransaction(ctx context.Context, userID string, input ReviewInput) (models.Transaction, error)
}

// TransactionService imports QuickBooks purchases and records review decisions.
type TransactionService struct {
	db              *sql.DB
	qb              QuickBooksAPI
	clientService   ClientServiceProvider
	learningService LearningServiceProvider
	eventService    EventServiceProvider
	notifier        Notifier
	thresholds      thresholds
}

// NewTransactionService creates a new TransactionService.
func NewTransactionService(db *sql.DB, qb QuickBooksAPI, clientService ClientServiceProvider, learningService LearningServiceProvider, eventService EventServiceProvider, notifier Notifier, highConfidence, mediumConfidence float64) *TransactionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TransactionService{
		db:              db,
		qb:              qb,
		clientService:   clientService,
		learningService: learningService,
		eventService:    eventService,
		notifier:        notifier,
		thresholds:      thresholds{high: highConfidence, medium: mediumConfidence},
	}
}

// SyncTransactions imports uncategorized purchases dated within [start, end].
// Purchases already imported for the client are skipped.
func (s *TransactionService) SyncTransactions(ctx context.Context, client models.Client, start, end time.Time) (models.SyncResult, error) {
	if end.Before(start) {
		return models.SyncResult{}, fmt.Errorf("end date is before start date: %w", ErrValidation)
	}

	session, err := s.clientService.Session(ctx, client)
	if err != nil {
		return models.SyncResult{}, err
	}

	purchases, err := s.qb.FetchUncategorizedPurchases(ctx, session, start, end)
	if err != nil {
		s.eventService.CreateEvent(EventQuickBooksError, "error", fmt.Sprintf("Failed to fetch transactions for %s: %v", client.Name, err), &client.UserID, &client.ID)
		return models.SyncResult{}, err
	}
	log.Info().Str("client_id", client.ID).Int("fetched", len(purchases)).Msg("Fetched transactions from QuickBooks")

	// The review screen needs a current chart of accounts, but a stale cache
	// should not block the import.
	if err := s.clientService.RefreshReferenceData(ctx, client, session); err != nil {
		log.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to refresh accounts and classes")
	}

	result := models.SyncResult{Success: true, TransactionsFetched: len(purchases)}
	for _, p := range purchases {
		stored, err := s.storePurchase(client.ID, p)
		if err != nil {
			log.Error().Err(err).Str("client_id", client.ID).Str("qb_id", p.ID).Msg("Failed to store transaction")
			result.Errors = append(result.Errors, fmt.Sprintf("purchase %s: %v", p.ID, err))
			result.TransactionsSkipped++
			continue
		}
		if stored {
			result.TransactionsStored++
		} else {
			result.TransactionsSkipped++
		}
	}

	if err := s.clientService.MarkSynced(client.ID, time.Now()); err != nil {
		log.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to update last sync time")
	}

	result.Message = fmt.Sprintf("Successfully synced %d new transactions", result.TransactionsStored)
	s.eventService.CreateEvent(EventTransactionsSynced, "info", fmt.Sprintf("%s: %s", client.Name, result.Message), &client.UserID, &client.ID)
	s.notifier.Publish(client.ID, websocket.ActionSyncCompleted, result)
	return result, nil
}

// storePurchase inserts a purchase and reports whether it was new.
func (s *TransactionService) storePurchase(clientID string, p quickbooks.Purchase) (bool, error) {
	date, err := p.Date()
	if err != nil {
		return false, fmt.Errorf("invalid TxnDate %q: %w", p.TxnDate, err)
	}

	description := p.PrivateNote
	if description == "" {
		description = p.DocNumber
	}
	var vendor, customer string
	if p.EntityRef != nil {
		switch p.EntityRef.Type {
		case "Customer":
			customer = p.EntityRef.Name
		case "Employee":
		default:
			vendor = p.EntityRef.Name
		}
	}
	var origAccountID, origAccountName, origClassID, origClassName string
	if d := p.ExpenseDetail(); d != nil {
		if d.AccountRef != nil {
			origAccountID, origAccountName = d.AccountRef.Value, d.AccountRef.Name
		}
		if d.ClassRef != nil {
			origClassID, origClassName = d.ClassRef.Value, d.ClassRef.Name
		}
		if description == "" {
			for _, l := range p.Line {
				if l.Description != "" {
					description = l.Description
					break
				}
			}
		}
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		INSERT INTO transactions (id, client_id, qb_id, qb_type, date, amount, description, vendor, customer, memo,
			original_account_id, original_account_name, original_class_id, original_class_name, status, created_at, updated_at)
		VALUES (?, ?, ?, 'Purchase', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id, qb_type, qb_id) DO NOTHING`,
		uuid.New().String(), clientID, p.ID, date, p.TotalAmt.Abs(),
		models.StringPtr(description), models.StringPtr(vendor), models.StringPtr(customer), models.StringPtr(p.PrivateNote),
		models.StringPtr(origAccountID), models.StringPtr(origAccountName), models.StringPtr(origClassID), models.StringPtr(origClassName),
		models.StatusPending, now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetTransactions lists a client's transactions, newest first, optionally filtered by status.
func (s *TransactionService) GetTransactions(clientID string, status models.TransactionStatus) ([]models.Transaction, error) {
	if status == "" {
		return queryTransactions(s.db, s.thresholds, "SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? ORDER BY date DESC, created_at DESC", clientID)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}
	return queryTransactions(s.db, s.thresholds, "SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND status = ? ORDER BY date DESC, created_at DESC", clientID, status)
}

// GetTransactionForUser loads a transaction and checks that its client belongs to userID.
func (s *TransactionService) GetTransactionForUser(userID, transactionID string) (models.Transaction, error) {
	t, err := getTransaction(s.db, s.thresholds, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	var owner string
	if err := s.db.QueryRow("SELECT user_id FROM clients WHERE id = ?", t.ClientID).Scan(&owner); err != nil {
		return models.Transaction{}, err
	}
	if owner != userID {
		return models.Transaction{}, fmt.Errorf("transaction %s: %w", transactionID, ErrForbidden)
	}
	return t, nil
}

// GetCategorizationStatus counts a client's transactions by review status.
func (s *TransactionService) GetCategorizationStatus(clientID string) (models.CategorizationStatus, error) {
	status := models.CategorizationStatus{ClientID: clientID}

	rows, err := s.db.Query("SELECT status, COUNT(*) FROM transactions WHERE client_id = ? GROUP BY status", clientID)
	if err != nil {
		return status, err
	}
	defer rows.Close()

	for rows.Next() {
		var st models.TransactionStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return status, err
		}
		switch st {
		case models.StatusPending:
			status.Pending = n
		case models.StatusApproved:
			status.Approved = n
		case models.StatusEdited:
			status.Edited = n
		case models.StatusRejected:
			status.Rejected = n
		case models.StatusSynced:
			status.Synced = n
		case models.StatusError:
			status.Error = n
		}
		status.Total += n
	}
	if err := rows.Err(); err != nil {
		return status, err
	}

	err = s.db.QueryRow("SELECT COUNT(*) FROM transactions WHERE client_id = ? AND ai_account_id IS NULL AND status = 'PENDING'", clientID).
		Scan(&status.Uncategorized)
	return status, err
}

// ReviewTransaction approves or rejects an AI suggestion. Approval stores the
// final categorization and feeds it into the client's learning corpus; a
// rejection withdraws any earlier approval from the corpus.
func (s *TransactionService) ReviewTransaction(ctx context.Context, userID string, input ReviewInput) (models.Transaction, error) {
	if input.TransactionID == "" {
		return models.Transaction{}, fmt.Errorf("transaction ID is required: %w", ErrValidation)
	}
	t, err := s.GetTransactionForUser(userID, input.TransactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	if t.Status == models.StatusSynced {
		return models.Transaction{}, fmt.Errorf("transaction %s is already synced to QuickBooks: %w", t.ID, ErrInvalidState)
	}

	now := time.Now().UTC()
	if !input.Approved {
		_, err = s.db.Exec(`
			UPDATE transactions SET status = ?, reviewed_at = ?, updated_at = ?,
				ai_account_id = NULL, ai_account_name = NULL, ai_class_id = NULL, ai_class_name = NULL,
				ai_confidence_score = NULL, ai_reasoning_notes = NULL,
				final_account_id = NULL, final_account_name = NULL, final_class_id = NULL, final_class_name = NULL
			WHERE id = ?`, models.StatusRejected, now, now, t.ID)
		if err != nil {
			return models.Transaction{}, fmt.Errorf("failed to reject transaction: %w", err)
		}
		if err := s.learningService.RemoveLearningExample(ctx, t.ID); err != nil {
			log.Error().Err(err).Str("transaction_id", t.ID).Msg("Failed to remove learning example")
		}
		return s.finishReview(t.ID, userID, "rejected")
	}

	accountID := input.AccountID
	if accountID == "" {
		accountID = models.StringValue(t.AIAccountID)
	}
	if accountID == "" {
		return models.Transaction{}, fmt.Errorf("transaction has no suggested account, an account ID is required: %w", ErrValidation)
	}
	account, err := lookupAccount(s.db, t.ClientID, accountID)
	if err != nil {
		return models.Transaction{}, err
	}

	classID := input.ClassID
	if classID == "" {
		classID = models.StringValue(t.AIClassID)
	}
	var className string
	if classID != "" {
		class, err := lookupClass(s.db, t.ClientID, classID)
		if err != nil {
			return models.Transaction{}, err
		}
		className = class.Name
	}

	status := models.StatusApproved
	if accountID != models.StringValue(t.AIAccountID) || classID != models.StringValue(t.AIClassID) {
		status = models.StatusEdited
	}

	_, err = s.db.Exec(`
		UPDATE transactions SET status = ?, reviewed_at = ?, updated_at = ?,
			final_account_id = ?, final_account_name = ?, final_class_id = ?, final_class_name = ?, sync_error = NULL
		WHERE id = ?`,
		status, now, now, account.QBID, account.Name, models.StringPtr(classID), models.StringPtr(className), t.ID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("failed to approve transaction: %w", err)
	}

	approved, err := getTransaction(s.db, s.thresholds, t.ID)
	if err != nil {
		return models.Transaction{}, err
	}
	if _, err := s.learningService.CreateLearningExample(ctx, approved); err != nil {
		log.Error().Err(err).Str("transaction_id", t.ID).Msg("Failed to create learning example")
	}
	return s.finishReview(t.ID, userID, string(status))
}

func (s *TransactionService) finishReview(transactionID, userID, outcome string) (models.Transaction, error) {
	t, err := getTransaction(s.db, s.thresholds, transactionID)
	if err != nil {
		return models.Transaction{}, err
	}
	log.Info().Str("transaction_id", t.ID).Str("status", string(t.Status)).Msg("Transaction reviewed")
	s.eventService.CreateEvent(EventTransactionReviewed, "info", fmt.Sprintf("Transaction %s %s", t.QBID, outcome), &userID, &t.ClientID)
	s.notifier.Publish(t.ClientID, websocket.ActionTransactionUpdated, t)
	return t, nil
}
