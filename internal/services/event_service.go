package services

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/qb-categorizer-be/internal/models"
)

// Event types written to the activity log.
const (
	EventClientConnected         = "client.connected"
	EventClientDisconnected      = "client.disconnected"
	EventTransactionsSynced      = "transactions.synced"
	EventTransactionsCategorized = "transactions.categorized"
	EventTransactionReviewed     = "transaction.reviewed"
	EventQuickBooksUpdated       = "quickbooks.updated"
	EventQuickBooksError         = "quickbooks.error"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(eventType, level, message string, userID, clientID *string) error
	GetRecentEvents(userID string, limit int) ([]models.Event, error)
}

// EventService provides business logic for event management.
type EventService struct {
	db *sql.DB
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(eventType, level, message string, userID, clientID *string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		UserID:    userID,
		ClientID:  clientID,
		CreatedAt: time.Now().UTC(),
	}

	stmt, err := s.db.Prepare("INSERT INTO events (id, type, level, message, user_id, client_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.Exec(event.ID, event.Type, event.Level, event.Message, event.UserID, event.ClientID, event.CreatedAt)
	return err
}

// GetRecentEvents retrieves a user's most recent events.
func (s *EventService) GetRecentEvents(userID string, limit int) ([]models.Event, error) {
	rows, err := s.db.Query("SELECT id, type, level, message, user_id, client_id, created_at FROM events WHERE user_id = ? ORDER BY created_at DESC LIMIT ?", userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		var uid, cid sql.NullString
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &uid, &cid, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.UserID = nullStringPtr(uid)
		event.ClientID = nullStringPtr(cid)
		events = append(events, event)
	}
	return events, rows.Err()
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
