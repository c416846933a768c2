package models

import "time"

// Event represents a loggable action or alert in the system.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "transactions.synced", "qb.sync.error"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	UserID    *string   `json:"userId,omitempty"`
	ClientID  *string   `json:"clientId,omitempty"` // Nullable for account-wide events
	CreatedAt time.Time `json:"createdAt"`
}
