package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/isdelr/qb-categorizer-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// QuickBooksSyncServiceProvider defines the interface for writing categorizations back to QuickBooks.
type QuickBooksSyncServiceProvider interface {
	PushToQuickBooks(ctx context.Context, client models.Client, transactionIDs []string) (models.PushResult, error)
}

// QuickBooksSyncService pushes reviewed categorizations to QuickBooks.
type QuickBooksSyncService struct {
	db            *sql.DB
	qb            QuickBooksAPI
	clientService ClientServiceProvider
	eventService  EventServiceProvider
	notifier      Notifier
	thresholds    thresholds
}

// NewQuickBooksSyncService creates a new QuickBooksSyncService.
func NewQuickBooksSyncService(db *sql.DB, qb QuickBooksAPI, clientService ClientServiceProvider, eventService EventServiceProvider, notifier Notifier,
	highConfidence, mediumConfidence float64) *QuickBooksSyncService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &QuickBooksSyncService{
		db:            db,
		qb:            qb,
		clientService: clientService,
		eventService:  eventService,
		notifier:      notifier,
		thresholds:    thresholds{high: highConfidence, medium: mediumConfidence},
	}
}

// PushToQuickBooks updates the given approved transactions in QuickBooks, or every
// approved transaction not yet synced when no IDs are given. Each row ends SYNCED
// or ERROR.
func (s *QuickBooksSyncService) PushToQuickBooks(ctx context.Context, client models.Client, transactionIDs []string) (models.PushResult, error) {
	var (
		transactions []models.Transaction
		err          error
	)
	if len(transactionIDs) > 0 {
		placeholders, args := inClause(transactionIDs)
		transactions, err = queryTransactions(s.db, s.thresholds,
			"SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND status IN ('APPROVED', 'EDITED') AND id IN ("+placeholders+") ORDER BY date",
			append([]any{client.ID}, args...)...)
	} else {
		transactions, err = queryTransactions(s.db, s.thresholds,
			"SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND status IN ('APPROVED', 'EDITED') AND synced_to_qb = 0 ORDER BY date",
			client.ID)
	}
	if err != nil {
		return models.PushResult{}, err
	}

	result := models.PushResult{Success: true, ErrorDetails: []models.ItemError{}}
	if len(transactions) == 0 {
		result.Message = "No approved transactions to sync"
		return result, nil
	}

	session, err := s.clientService.Session(ctx, client)
	if err != nil {
		return models.PushResult{}, err
	}
	log.Info().Str("client_id", client.ID).Int("transactions", len(transactions)).Msg("Syncing approved transactions to QuickBooks")

	for _, t := range transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.push(ctx, session, t); err != nil {
			log.Error().Err(err).Str("transaction_id", t.ID).Str("qb_id", t.QBID).Msg("Failed to sync transaction to QuickBooks")
			result.Errors++
			result.ErrorDetails = append(result.ErrorDetails, models.ItemError{TransactionID: t.ID, Error: err.Error()})
			continue
		}
		result.Synced++
	}

	result.Message = fmt.Sprintf("Successfully synced %d transactions to QuickBooks", result.Synced)
	level := "info"
	if result.Errors > 0 {
		result.Message += fmt.Sprintf(", %d errors", result.Errors)
		level = "warn"
	}
	s.eventService.CreateEvent(EventQuickBooksUpdated, level, fmt.Sprintf("%s: %s", client.Name, result.Message), &client.UserID, &client.ID)
	s.notifier.Publish(client.ID, websocket.ActionQBSyncCompleted, result)
	return result, nil
}

// push writes one transaction and records the outcome on its row.
func (s *QuickBooksSyncService) push(ctx context.Context, session quickbooks.Session, t models.Transaction) error {
	account := quickbooks.Ref{Value: models.StringValue(t.FinalAccountID), Name: models.StringValue(t.FinalAccountName)}
	var class *quickbooks.Ref
	if t.FinalClassID != nil {
		class = &quickbooks.Ref{Value: *t.FinalClassID, Name: models.StringValue(t.FinalClassName)}
	}

	now := time.Now().UTC()
	pushErr := s.qb.UpdatePurchaseCategory(ctx, session, t.QBID, account, class)
	if pushErr != nil {
		_, err := s.db.Exec("UPDATE transactions SET status = ?, sync_error = ?, updated_at = ? WHERE id = ?",
			models.StatusError, pushErr.Error(), now, t.ID)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", t.ID).Msg("Failed to record sync error")
		}
	} else {
		_, err := s.db.Exec("UPDATE transactions SET status = ?, synced_to_qb = 1, synced_at = ?, sync_error = NULL, updated_at = ? WHERE id = ?",
			models.StatusSynced, now, now, t.ID)
		if err != nil {
			return fmt.Errorf("updated in QuickBooks but failed to mark synced: %w", err)
		}
	}

	if updated, err := getTransaction(s.db, s.thresholds, t.ID); err == nil {
		s.notifier.Publish(t.ClientID, websocket.ActionTransactionUpdated, updated)
	}
	return pushErr
}
