package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/isdelr/qb-categorizer-be/internal/ai"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// CategorizationServiceProvider defines the interface for AI categorization.
type CategorizationServiceProvider interface {
	CategorizeTransaction(ctx context.Context, t models.Transaction) (models.CategorizationOutcome, error)
	CategorizeTransactions(ctx context.Context, client models.Client, transactionIDs []string) (models.CategorizeResult, error)
}

// CategorizationService asks the language model for account and class suggestions.
type CategorizationService struct {
	db              *sql.DB
	llm             LanguageModel
	clientService   ClientServiceProvider
	learningService LearningServiceProvider
	eventService    EventServiceProvider
	notifier        Notifier
	thresholds      thresholds
	batchSize       int
}

// NewCategorizationService creates a new CategorizationService.
func NewCategorizationService(db *sql.DB, llm LanguageModel, clientService ClientServiceProvider, learningService LearningServiceProvider, eventService EventServiceProvider, notifier Notifier, highConfidence, mediumConfidence float64, batchSize int) *CategorizationService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &CategorizationService{
		db:              db,
		llm:             llm,
		clientService:   clientService,
		learningService: learningService,
		eventService:    eventService,
		notifier:        notifier,
		thresholds:      thresholds{high: highConfidence, medium: mediumConfidence},
		batchSize:       batchSize,
	}
}

// CategorizeTransaction suggests an account and class for one transaction and stores the suggestion.
func (s *CategorizationService) CategorizeTransaction(ctx context.Context, t models.Transaction) (models.CategorizationOutcome, error) {
	if t.Status != models.StatusPending && t.Status != models.StatusRejected {
		return models.CategorizationOutcome{}, fmt.Errorf("transaction %s is %s: %w", t.ID, t.Status, ErrInvalidState)
	}

	accounts, err := s.clientService.GetAccounts(t.ClientID)
	if err != nil {
		return models.CategorizationOutcome{}, err
	}
	if len(accounts) == 0 {
		return models.CategorizationOutcome{}, fmt.Errorf("no accounts cached for client %s, sync first: %w", t.ClientID, ErrInvalidState)
	}
	classes, err := s.clientService.GetClasses(t.ClientID)
	if err != nil {
		return models.CategorizationOutcome{}, err
	}

	examples := s.learningService.FindSimilarExamples(ctx, t.ClientID, t.SearchText())

	prompt := ai.BuildCategorizationPrompt(ai.PromptInput{
		Transaction: t,
		Accounts:    accounts,
		Classes:     classes,
		Examples:    examples,
	})
	raw, err := s.llm.Complete(ctx, ai.SystemPrompt, prompt)
	if err != nil {
		return models.CategorizationOutcome{}, err
	}
	suggestion, err := ai.ParseSuggestion(raw)
	if err != nil {
		return models.CategorizationOutcome{}, err
	}

	account, ok := resolveAccount(accounts, suggestion.AccountID, suggestion.AccountName)
	if !ok {
		return models.CategorizationOutcome{}, fmt.Errorf("model suggested unknown account %q (%s): %w", suggestion.AccountName, suggestion.AccountID, ai.ErrInvalidSuggestion)
	}
	var classID, className string
	if class, ok := resolveClass(classes, suggestion.ClassID, suggestion.ClassName); ok {
		classID, className = class.QBID, class.Name
	}

	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE transactions SET ai_account_id = ?, ai_account_name = ?, ai_class_id = ?, ai_class_name = ?,
			ai_confidence_score = ?, ai_reasoning_notes = ?, status = ?, updated_at = ?
		WHERE id = ? AND status IN ('PENDING', 'REJECTED')`,
		account.QBID, account.Name, models.StringPtr(classID), models.StringPtr(className),
		suggestion.Confidence, models.StringPtr(suggestion.Reasoning), models.StatusPending, now, t.ID)
	if err != nil {
		return models.CategorizationOutcome{}, fmt.Errorf("failed to store suggestion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.CategorizationOutcome{}, fmt.Errorf("transaction %s was reviewed during categorization: %w", t.ID, ErrInvalidState)
	}

	outcome := models.CategorizationOutcome{
		TransactionID:   t.ID,
		Success:         true,
		AccountID:       account.QBID,
		AccountName:     account.Name,
		ClassID:         classID,
		ClassName:       className,
		Confidence:      suggestion.Confidence,
		ConfidenceLevel: models.ConfidenceLevel(suggestion.Confidence, s.thresholds.high, s.thresholds.medium),
		Reasoning:       suggestion.Reasoning,
	}
	log.Debug().Str("transaction_id", t.ID).Str("account_id", account.QBID).Float64("confidence", suggestion.Confidence).Int("examples", len(examples)).Msg("Transaction categorized")

	if updated, err := getTransaction(s.db, s.thresholds, t.ID); err == nil {
		s.notifier.Publish(t.ClientID, websocket.ActionTransactionUpdated, updated)
	}
	return outcome, nil
}

// CategorizeTransactions categorizes the given transactions of a client, or when
// none are given, the oldest pending transactions that have no suggestion yet.
// Failures are collected per transaction.
func (s *CategorizationService) CategorizeTransactions(ctx context.Context, client models.Client, transactionIDs []string) (models.CategorizeResult, error) {
	var (
		transactions []models.Transaction
		err          error
	)
	if len(transactionIDs) > 0 {
		placeholders, args := inClause(transactionIDs)
		transactions, err = queryTransactions(s.db, s.thresholds,
			"SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND status IN ('PENDING', 'REJECTED') AND id IN ("+placeholders+") ORDER BY date",
			append([]any{client.ID}, args...)...)
	} else {
		transactions, err = queryTransactions(s.db, s.thresholds,
			"SELECT "+transactionColumns+" FROM transactions WHERE client_id = ? AND status = 'PENDING' AND ai_account_id IS NULL ORDER BY date LIMIT ?",
			client.ID, s.batchSize)
	}
	if err != nil {
		return models.CategorizeResult{}, err
	}

	result := models.CategorizeResult{Success: true, Results: []models.CategorizationOutcome{}}
	if len(transactions) == 0 {
		result.Message = "No transactions to categorize"
		return result, nil
	}

	for _, t := range transactions {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		outcome, err := s.CategorizeTransaction(ctx, t)
		if err != nil {
			log.Error().Err(err).Str("transaction_id", t.ID).Str("client_id", client.ID).Msg("Failed to categorize transaction")
			result.Errors = append(result.Errors, models.ItemError{TransactionID: t.ID, Error: err.Error()})
			continue
		}
		result.Results = append(result.Results, outcome)
	}
	result.Categorized = len(result.Results)
	result.Failed = len(result.Errors)
	result.Message = fmt.Sprintf("Categorized %d transactions", result.Categorized)

	level := "info"
	if result.Failed > 0 {
		level = "warn"
	}
	s.eventService.CreateEvent(EventTransactionsCategorized, level, fmt.Sprintf("%s: categorized %d, failed %d", client.Name, result.Categorized, result.Failed), &client.UserID, &client.ID)
	s.notifier.Publish(client.ID, websocket.ActionCategorizationCompleted, map[string]int{"categorized": result.Categorized, "failed": result.Failed})
	return result, nil
}

func resolveAccount(accounts []models.QBAccount, id, name string) (models.QBAccount, bool) {
	for _, a := range accounts {
		if id != "" && a.QBID == id {
			return a, true
		}
	}
	for _, a := range accounts {
		if name != "" && (strings.EqualFold(a.Name, name) || strings.EqualFold(a.FullyQualifiedName, name)) {
			return a, true
		}
	}
	return models.QBAccount{}, false
}

func resolveClass(classes []models.QBClass, id, name string) (models.QBClass, bool) {
	if id == "" && name == "" {
		return models.QBClass{}, false
	}
	for _, c := range classes {
		if id != "" && c.QBID == id {
			return c, true
		}
	}
	for _, c := range classes {
		if name != "" && (strings.EqualFold(c.Name, name) || strings.EqualFold(c.FullyQualifiedName, name)) {
			return c, true
		}
	}
	return models.QBClass{}, false
}
