package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/qb-categorizer-be/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByAuthID(authID string) (models.User, error)
	UpsertUser(authID, email, name string) (models.User, error)
	DeleteUserByAuthID(ctx context.Context, authID string) error
}

// UserService mirrors auth provider users into the local database.
type UserService struct {
	db      *sql.DB
	vectors VectorIndex
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB, vectors VectorIndex) *UserService {
	return &UserService{db: db, vectors: vectors}
}

// GetUserByAuthID retrieves a user by their auth provider ID.
func (s *UserService) GetUserByAuthID(authID string) (models.User, error) {
	var user models.User
	row := s.db.QueryRow("SELECT id, auth_id, email, name, created_at, updated_at FROM users WHERE auth_id = ?", authID)
	err := row.Scan(&user.ID, &user.AuthID, &user.Email, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, fmt.Errorf("user %s: %w", authID, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// UpsertUser creates the user on first sight and refreshes their profile afterwards.
func (s *UserService) UpsertUser(authID, email, name string) (models.User, error) {
	if authID == "" {
		return models.User{}, fmt.Errorf("auth id is required: %w", ErrValidation)
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO users (id, auth_id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(auth_id) DO UPDATE SET email = excluded.email, name = excluded.name, updated_at = excluded.updated_at`,
		uuid.New().String(), authID, email, name, now, now)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUserByAuthID(authID)
}

// DeleteUserByAuthID removes a user and, by cascade, their clients and transactions.
// The learning vectors of every client they owned are removed from the index
// first, best effort. Deleting an unknown user is not an error.
func (s *UserService) DeleteUserByAuthID(ctx context.Context, authID string) error {
	purgeVectors(ctx, s.db, s.vectors, `
		SELECT l.pinecone_id FROM learning_examples l
		JOIN clients c ON c.id = l.client_id
		JOIN users u ON u.id = c.user_id
		WHERE u.auth_id = ? AND l.pinecone_id IS NOT NULL`, authID)

	_, err := s.db.Exec("DELETE FROM users WHERE auth_id = ?", authID)
	return err
}
