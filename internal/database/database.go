package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// New creates a new database connection pool.
func New(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dataSourceName+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers anyway, and a single connection keeps ":memory:" databases intact.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the SQL statements to set up the database schema.
func Migrate(db *sql.DB) error {
	const sqlStmt = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT NOT NULL PRIMARY KEY,
		auth_id TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clients (
		id TEXT NOT NULL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		qb_realm_id TEXT NOT NULL UNIQUE,
		qb_access_token TEXT NOT NULL,
		qb_refresh_token TEXT NOT NULL,
		qb_token_expiry DATETIME NOT NULL,
		qb_refresh_token_expiry DATETIME,
		qb_environment TEXT NOT NULL DEFAULT 'sandbox',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_sync_at DATETIME,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clients_user ON clients(user_id);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT NOT NULL PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		qb_id TEXT NOT NULL,
		qb_type TEXT NOT NULL,
		date DATETIME NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		vendor TEXT,
		customer TEXT,
		memo TEXT,
		original_account_id TEXT,
		original_account_name TEXT,
		original_class_id TEXT,
		original_class_name TEXT,
		ai_account_id TEXT,
		ai_account_name TEXT,
		ai_class_id TEXT,
		ai_class_name TEXT,
		ai_confidence_score REAL,
		ai_reasoning_notes TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		reviewed_at DATETIME,
		final_account_id TEXT,
		final_account_name TEXT,
		final_class_id TEXT,
		final_class_name TEXT,
		synced_to_qb INTEGER NOT NULL DEFAULT 0,
		synced_at DATETIME,
		sync_error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (client_id, qb_type, qb_id)
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_client_status ON transactions(client_id, status);

	CREATE TABLE IF NOT EXISTS qb_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		qb_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fully_qualified_name TEXT,
		account_type TEXT NOT NULL,
		account_sub_type TEXT,
		classification TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		UNIQUE (client_id, qb_id)
	);

	CREATE TABLE IF NOT EXISTS qb_classes (
		id TEXT NOT NULL PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		qb_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fully_qualified_name TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		UNIQUE (client_id, qb_id)
	);

	CREATE TABLE IF NOT EXISTS learning_examples (
		id TEXT NOT NULL PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
		transaction_id TEXT NOT NULL UNIQUE REFERENCES transactions(id) ON DELETE CASCADE,
		description TEXT NOT NULL DEFAULT '',
		vendor TEXT,
		amount TEXT NOT NULL,
		correct_account_id TEXT NOT NULL,
		correct_account_name TEXT NOT NULL,
		correct_class_id TEXT,
		correct_class_name TEXT,
		ai_account_id TEXT,
		ai_account_name TEXT,
		was_correct INTEGER NOT NULL DEFAULT 0,
		embedding_json TEXT,
		pinecone_id TEXT,
		synced_to_pinecone INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_learning_examples_client ON learning_examples(client_id);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL PRIMARY KEY,
		type TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		user_id TEXT,
		client_id TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, created_at);
	`
	if _, err := db.Exec(sqlStmt); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
