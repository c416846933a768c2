package models

import "time"

// User represents a bookkeeper account mirrored from the auth provider.
type User struct {
	ID        string    `json:"id"`
	AuthID    string    `json:"authId"` // Auth provider user ID
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
