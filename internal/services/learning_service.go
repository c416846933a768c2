package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/vector"
	"github.com/rs/zerolog/log"
)

const (
	similarTopK      = 5
	resyncBatchLimit = 100
)

// LearningServiceProvider defines the interface for the per-client learning corpus.
type LearningServiceProvider interface {
	CreateLearningExample(ctx context.Context, t models.Transaction) (models.LearningExample, error)
	RemoveLearningExample(ctx context.Context, transactionID string) error
	FindSimilarExamples(ctx context.Context, clientID, text string) []models.LearningExample
	SyncPendingExamples(ctx context.Context) (int, error)
}

// LearningService stores approved categorizations and indexes their embeddings.
type LearningService struct {
	db                  *sql.DB
	llm                 LanguageModel
	index               VectorIndex
	similarityThreshold float64
}

// NewLearningService creates a new LearningService.
func NewLearningService(db *sql.DB, llm LanguageModel, index VectorIndex, similarityThreshold float64) *LearningService {
	return &LearningService{db: db, llm: llm, index: index, similarityThreshold: similarityThreshold}
}

const learningColumns = `id, client_id, transaction_id, description, vendor, amount, correct_account_id, correct_account_name,
	correct_class_id, correct_class_name, ai_account_id, ai_account_name, was_correct, COALESCE(embedding_json, ''),
	pinecone_id, synced_to_pinecone, created_at`

func scanLearningExample(row rowScanner) (models.LearningExample, error) {
	var l models.LearningExample
	err := row.Scan(&l.ID, &l.ClientID, &l.TransactionID, &l.Description, &l.Vendor, &l.Amount, &l.CorrectAccountID,
		&l.CorrectAccountName, &l.CorrectClassID, &l.CorrectClassName, &l.AIAccountID, &l.AIAccountName, &l.WasCorrect,
		&l.EmbeddingJSON, &l.PineconeID, &l.SyncedToPinecone, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	l.PrepareForAPI()
	return l, nil
}

// CreateLearningExample records an approved transaction as a learning example.
// A transaction has at most one example: approving it again with the same
// categorization returns the stored example, a different one rewrites it and
// re-indexes the vector. Embedding and indexing failures leave the example
// unsynced for SyncPendingExamples to retry.
func (s *LearningService) CreateLearningExample(ctx context.Context, t models.Transaction) (models.LearningExample, error) {
	if t.FinalAccountID == nil || *t.FinalAccountID == "" {
		return models.LearningExample{}, fmt.Errorf("transaction %s has no final categorization: %w", t.ID, ErrInvalidState)
	}

	existing, err := scanLearningExample(s.db.QueryRow("SELECT "+learningColumns+" FROM learning_examples WHERE transaction_id = ?", t.ID))
	if err == nil {
		if existing.CorrectAccountID == *t.FinalAccountID && models.StringValue(existing.CorrectClassID) == models.StringValue(t.FinalClassID) {
			return existing, nil
		}
		return s.updateExample(ctx, existing, t)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.LearningExample{}, err
	}

	example := models.LearningExample{
		ID:                 uuid.New().String(),
		ClientID:           t.ClientID,
		TransactionID:      t.ID,
		Description:        models.StringValue(t.Description),
		Vendor:             t.Vendor,
		Amount:             t.Amount,
		CorrectAccountID:   *t.FinalAccountID,
		CorrectAccountName: models.StringValue(t.FinalAccountName),
		CorrectClassID:     t.FinalClassID,
		CorrectClassName:   t.FinalClassName,
		AIAccountID:        t.AIAccountID,
		AIAccountName:      t.AIAccountName,
		WasCorrect:         models.StringValue(t.AIAccountID) == *t.FinalAccountID,
		CreatedAt:          time.Now().UTC(),
	}

	_, err = s.db.Exec(`
		INSERT INTO learning_examples (id, client_id, transaction_id, description, vendor, amount, correct_account_id,
			correct_account_name, correct_class_id, correct_class_name, ai_account_id, ai_account_name, was_correct,
			synced_to_pinecone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		example.ID, example.ClientID, example.TransactionID, example.Description, example.Vendor, example.Amount,
		example.CorrectAccountID, example.CorrectAccountName, example.CorrectClassID, example.CorrectClassName,
		example.AIAccountID, example.AIAccountName, example.WasCorrect, example.CreatedAt)
	if err != nil {
		return models.LearningExample{}, fmt.Errorf("failed to create learning example: %w", err)
	}

	if err := s.indexExample(ctx, &example); err != nil {
		log.Warn().Err(err).Str("learning_example_id", example.ID).Str("client_id", example.ClientID).Msg("Learning example not indexed, will retry")
	}
	return example, nil
}

// updateExample replaces the categorization of an existing example. The stored
// embedding is dropped so the vector is rebuilt with the new metadata.
func (s *LearningService) updateExample(ctx context.Context, l models.LearningExample, t models.Transaction) (models.LearningExample, error) {
	l.CorrectAccountID = *t.FinalAccountID
	l.CorrectAccountName = models.StringValue(t.FinalAccountName)
	l.CorrectClassID = t.FinalClassID
	l.CorrectClassName = t.FinalClassName
	l.AIAccountID = t.AIAccountID
	l.AIAccountName = t.AIAccountName
	l.WasCorrect = models.StringValue(t.AIAccountID) == *t.FinalAccountID
	l.Embedding = nil
	l.EmbeddingJSON = ""
	l.SyncedToPinecone = false

	_, err := s.db.Exec(`
		UPDATE learning_examples SET correct_account_id = ?, correct_account_name = ?, correct_class_id = ?,
			correct_class_name = ?, ai_account_id = ?, ai_account_name = ?, was_correct = ?,
			embedding_json = NULL, synced_to_pinecone = 0
		WHERE id = ?`,
		l.CorrectAccountID, l.CorrectAccountName, l.CorrectClassID, l.CorrectClassName,
		l.AIAccountID, l.AIAccountName, l.WasCorrect, l.ID)
	if err != nil {
		return models.LearningExample{}, fmt.Errorf("failed to update learning example: %w", err)
	}

	if err := s.indexExample(ctx, &l); err != nil {
		log.Warn().Err(err).Str("learning_example_id", l.ID).Str("client_id", l.ClientID).Msg("Learning example not re-indexed, will retry")
	}
	return l, nil
}

// RemoveLearningExample deletes the example recorded for a transaction, if any,
// together with its vector. Vector deletion is best effort.
func (s *LearningService) RemoveLearningExample(ctx context.Context, transactionID string) error {
	var id string
	var pineconeID sql.NullString
	err := s.db.QueryRow("SELECT id, pinecone_id FROM learning_examples WHERE transaction_id = ?", transactionID).Scan(&id, &pineconeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	if pineconeID.Valid {
		if err := s.index.Delete(ctx, []string{pineconeID.String}); err != nil {
			log.Warn().Err(err).Str("learning_example_id", id).Msg("Failed to delete learning vector")
		}
	}
	if _, err := s.db.Exec("DELETE FROM learning_examples WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete learning example: %w", err)
	}
	return nil
}

// indexExample embeds (if needed) and upserts one example, then marks it synced.
func (s *LearningService) indexExample(ctx context.Context, l *models.LearningExample) error {
	if len(l.Embedding) == 0 {
		embedding, err := s.llm.Embed(ctx, l.SearchText())
		if err != nil {
			return err
		}
		l.Embedding = embedding
		l.PrepareForDB()
		if _, err := s.db.Exec("UPDATE learning_examples SET embedding_json = ? WHERE id = ?", l.EmbeddingJSON, l.ID); err != nil {
			return fmt.Errorf("failed to store embedding: %w", err)
		}
	}

	err := s.index.Upsert(ctx, []vector.Vector{{
		ID:     l.ID,
		Values: l.Embedding,
		Metadata: map[string]string{
			"clientId":    l.ClientID,
			"description": l.Description,
			"vendor":      models.StringValue(l.Vendor),
			"accountId":   l.CorrectAccountID,
			"accountName": l.CorrectAccountName,
		},
	}})
	if err != nil {
		return err
	}

	if _, err := s.db.Exec("UPDATE learning_examples SET pinecone_id = ?, synced_to_pinecone = 1 WHERE id = ?", l.ID, l.ID); err != nil {
		return fmt.Errorf("failed to mark learning example synced: %w", err)
	}
	l.PineconeID = &l.ID
	l.SyncedToPinecone = true
	return nil
}

// FindSimilarExamples returns the client's learning examples closest to text.
// Lookup failures are logged and yield no examples.
func (s *LearningService) FindSimilarExamples(ctx context.Context, clientID, text string) []models.LearningExample {
	if text == "" {
		return nil
	}
	embedding, err := s.llm.Embed(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to embed transaction for similarity search")
		return nil
	}
	matches, err := s.index.Query(ctx, clientID, embedding, similarTopK)
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to query learning index")
		return nil
	}

	var ids []string
	for _, m := range matches {
		if m.Score > s.similarityThreshold {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	placeholders, args := inClause(ids)
	rows, err := s.db.Query("SELECT "+learningColumns+" FROM learning_examples WHERE client_id = ? AND pinecone_id IN ("+placeholders+")",
		append([]any{clientID}, args...)...)
	if err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to load similar learning examples")
		return nil
	}
	defer rows.Close()

	var examples []models.LearningExample
	for rows.Next() {
		l, err := scanLearningExample(rows)
		if err != nil {
			log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to read learning example")
			return nil
		}
		examples = append(examples, l)
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to read similar learning examples")
		return nil
	}
	return examples
}

// SyncPendingExamples retries indexing of examples that never reached the vector index.
func (s *LearningService) SyncPendingExamples(ctx context.Context) (int, error) {
	rows, err := s.db.Query("SELECT "+learningColumns+" FROM learning_examples WHERE synced_to_pinecone = 0 ORDER BY created_at LIMIT ?", resyncBatchLimit)
	if err != nil {
		return 0, err
	}
	var pending []models.LearningExample
	for rows.Next() {
		l, err := scanLearningExample(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		pending = append(pending, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	synced := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := s.indexExample(ctx, &pending[i]); err != nil {
			log.Warn().Err(err).Str("learning_example_id", pending[i].ID).Msg("Learning example resync failed")
			continue
		}
		synced++
	}
	if len(pending) > 0 {
		log.Info().Int("pending", len(pending)).Int("synced", synced).Msg("Resynced learning examples")
	}
	return synced, nil
}

// purgeVectors deletes the learning vectors whose IDs query selects. Failures
// are logged so the caller's row deletion can proceed.
func purgeVectors(ctx context.Context, db *sql.DB, index VectorIndex, query string, args ...any) {
	ids, err := listVectorIDs(db, query, args...)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list learning vectors for deletion")
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := index.Delete(ctx, ids); err != nil {
		log.Warn().Err(err).Int("vectors", len(ids)).Msg("Failed to delete learning vectors")
	}
}

func listVectorIDs(db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
