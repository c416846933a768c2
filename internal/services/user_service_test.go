package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/isdelr/qb-categorizer-be/internal/models"
)

func TestUserService_UpsertUser(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db, nil)

	created, err := svc.UpsertUser("user_1", "a@example.com", "Ada")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	updated, err := svc.UpsertUser("user_1", "ada@example.com", "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "ada@example.com", updated.Email)
	assert.Equal(t, "Ada Lovelace", updated.Name)

	_, err = svc.UpsertUser("", "x@example.com", "")
	assert.ErrorIs(t, err, ErrValidation)
}

func seedLearningExample(t *testing.T, db *sql.DB, clientID, id string, synced bool) {
	t.Helper()
	txID := seedTransaction(t, db, clientID, txSeed{qbID: id, status: models.StatusApproved})
	var pineconeID *string
	if synced {
		pineconeID = &id
	}
	_, err := db.Exec(`INSERT INTO learning_examples (id, client_id, transaction_id, description, amount, correct_account_id, correct_account_name, pinecone_id, synced_to_pinecone, created_at)
		VALUES (?, ?, ?, 'Printer paper', '5', '7', 'Office Supplies', ?, ?, ?)`, id, clientID, txID, pineconeID, synced, time.Now().UTC())
	require.NoError(t, err)
}

func TestUserService_DeleteUserByAuthID(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the vectors of every client", func(t *testing.T) {
		db := newTestDB(t)
		index := new(MockVectorIndex)
		svc := NewUserService(db, index)
		user := seedUser(t, db, "user_1")
		first := seedClient(t, db, user.ID, "realm-1", time.Now().Add(time.Hour))
		second := seedClient(t, db, user.ID, "realm-2", time.Now().Add(time.Hour))
		seedLearningExample(t, db, first.ID, "ex-1", true)
		seedLearningExample(t, db, second.ID, "ex-2", true)
		seedLearningExample(t, db, second.ID, "ex-unsynced", false)

		other := seedUser(t, db, "user_2")
		kept := seedClient(t, db, other.ID, "realm-3", time.Now().Add(time.Hour))
		seedLearningExample(t, db, kept.ID, "ex-other", true)

		var deleted []string
		index.On("Delete", ctx, mock.Anything).Run(func(args mock.Arguments) {
			deleted = args.Get(1).([]string)
		}).Return(nil).Once()

		require.NoError(t, svc.DeleteUserByAuthID(ctx, "user_1"))
		index.AssertExpectations(t)
		assert.ElementsMatch(t, []string{"ex-1", "ex-2"}, deleted)

		_, err := svc.GetUserByAuthID("user_1")
		assert.ErrorIs(t, err, ErrNotFound)

		var clients, examples int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM clients").Scan(&clients))
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM learning_examples").Scan(&examples))
		assert.Equal(t, 1, clients)
		assert.Equal(t, 1, examples)
	})

	t.Run("vector failure does not block deletion", func(t *testing.T) {
		db := newTestDB(t)
		index := new(MockVectorIndex)
		svc := NewUserService(db, index)
		user := seedUser(t, db, "user_1")
		client := seedClient(t, db, user.ID, "realm-1", time.Now().Add(time.Hour))
		seedLearningExample(t, db, client.ID, "ex-1", true)

		index.On("Delete", ctx, []string{"ex-1"}).Return(errors.New("pinecone unavailable")).Once()

		require.NoError(t, svc.DeleteUserByAuthID(ctx, "user_1"))
		index.AssertExpectations(t)
		_, err := svc.GetUserByAuthID("user_1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("user without vectors", func(t *testing.T) {
		db := newTestDB(t)
		index := new(MockVectorIndex)
		svc := NewUserService(db, index)
		user := seedUser(t, db, "user_1")
		seedClient(t, db, user.ID, "realm-1", time.Now().Add(time.Hour))

		require.NoError(t, svc.DeleteUserByAuthID(ctx, "user_1"))
		require.NoError(t, svc.DeleteUserByAuthID(ctx, "unknown"))
		index.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM clients").Scan(&n))
		assert.Zero(t, n)
	})
}

func TestUserService_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := NewUserService(db, nil)

	mock.ExpectQuery("SELECT id, auth_id, email, name, created_at, updated_at FROM users").
		WithArgs("user_1").
		WillReturnError(errors.New("disk I/O error"))
	_, err = svc.GetUserByAuthID("user_1")
	assert.EqualError(t, err, "disk I/O error")
	assert.NotErrorIs(t, err, ErrNotFound)

	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("database is locked"))
	_, err = svc.UpsertUser("user_1", "a@example.com", "Ada")
	assert.ErrorContains(t, err, "failed to upsert user")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventService_RecentEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewEventService(db)
	user := seedUser(t, db, "user_1")
	other := seedUser(t, db, "other")

	require.NoError(t, svc.CreateEvent(EventClientConnected, "info", "first", &user.ID, nil))
	require.NoError(t, svc.CreateEvent(EventTransactionsSynced, "info", "second", &user.ID, nil))
	require.NoError(t, svc.CreateEvent(EventQuickBooksError, "error", "not mine", &other.ID, nil))

	events, err := svc.GetRecentEvents(user.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "second", events[0].Message)
	assert.Nil(t, events[0].ClientID)

	events, err = svc.GetRecentEvents(user.ID, 1)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestEventService_DatabaseErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	svc := NewEventService(db)

	mock.ExpectPrepare("INSERT INTO events").WillReturnError(errors.New("no such table: events"))
	assert.Error(t, svc.CreateEvent(EventClientConnected, "info", "msg", nil, nil))

	mock.ExpectQuery("SELECT id, type, level, message, user_id, client_id, created_at FROM events").
		WithArgs("user_1", 5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("only-one-column"))
	_, err = svc.GetRecentEvents("user_1", 5)
	assert.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}
