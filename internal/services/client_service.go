package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/qb-categorizer-be/internal/cache"
	"github.com/isdelr/qb-categorizer-be/internal/models"
	"github.com/isdelr/qb-categorizer-be/internal/quickbooks"
	"github.com/rs/zerolog/log"
)

const (
	oauthStateTTL    = 10 * time.Minute
	oauthStatePrefix = "qb_oauth_state:"
	tokenRefreshSkew = time.Minute
)

// ClientServiceProvider defines the interface for connected QuickBooks companies.
type ClientServiceProvider interface {
	ConnectURL(ctx context.Context, userID string) (string, error)
	CompleteConnection(ctx context.Context, state, code, realmID string) (models.Client, error)
	GetClientsWithStats(userID string) ([]models.ClientWithStats, error)
	GetClientForUser(userID, clientID string) (models.Client, error)
	GetActiveClients() ([]models.Client, error)
	Disconnect(ctx context.Context, userID, clientID string) error
	Session(ctx context.Context, client models.Client) (quickbooks.Session, error)
	RefreshReferenceData(ctx context.Context, client models.Client, session quickbooks.Session) error
	GetAccounts(clientID string) ([]models.QBAccount, error)
	GetClasses(clientID string) ([]models.QBClass, error)
	MarkSynced(clientID string, at time.Time) error
}

// ClientService manages QuickBooks connections and their cached reference data.
type ClientService struct {
	db           *sql.DB
	qb           QuickBooksAPI
	cipher       TokenCipher
	states       cache.Store
	vectors      VectorIndex
	eventService EventServiceProvider
	environment  string
}

// NewClientService creates a new ClientService.
func NewClientService(db *sql.DB, qb QuickBooksAPI, cipher TokenCipher, states cache.Store, vectors VectorIndex, eventService EventServiceProvider, environment string) *ClientService {
	return &ClientService{
		db:           db,
		qb:           qb,
		cipher:       cipher,
		states:       states,
		vectors:      vectors,
		eventService: eventService,
		environment:  environment,
	}
}

const clientColumns = "id, user_id, name, qb_realm_id, qb_access_token, qb_refresh_token, qb_token_expiry, qb_refresh_token_expiry, qb_environment, is_active, last_sync_at, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner, extra ...any) (models.Client, error) {
	var c models.Client
	dest := []any{
		&c.ID, &c.UserID, &c.Name, &c.QBRealmID, &c.QBAccessToken, &c.QBRefreshToken,
		&c.QBTokenExpiry, &c.QBRefreshTokenExpiry, &c.QBEnvironment, &c.IsActive, &c.LastSyncAt, &c.CreatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	return c, err
}

// ConnectURL starts the OAuth flow for a user. The returned URL carries a
// single-use state nonce that maps back to the user on callback.
func (s *ClientService) ConnectURL(ctx context.Context, userID string) (string, error) {
	state := uuid.NewString()
	if err := s.states.Set(ctx, oauthStatePrefix+state, userID, oauthStateTTL); err != nil {
		return "", fmt.Errorf("failed to store oauth state: %w", err)
	}
	return s.qb.AuthCodeURL(state), nil
}

// CompleteConnection handles the OAuth callback: it exchanges the code, reads the
// company name and creates or refreshes the client row.
func (s *ClientService) CompleteConnection(ctx context.Context, state, code, realmID string) (models.Client, error) {
	if state == "" || code == "" || realmID == "" {
		return models.Client{}, fmt.Errorf("code, realmId and state are required: %w", ErrValidation)
	}
	userID, err := s.states.Take(ctx, oauthStatePrefix+state)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return models.Client{}, fmt.Errorf("unknown or expired oauth state: %w", ErrValidation)
		}
		return models.Client{}, err
	}

	tok, err := s.qb.Exchange(ctx, code)
	if err != nil {
		return models.Client{}, err
	}
	session := quickbooks.Session{RealmID: realmID, AccessToken: tok.AccessToken}

	name := fmt.Sprintf("QB Company %s", realmID)
	if info, err := s.qb.CompanyInfo(ctx, session); err != nil {
		log.Warn().Err(err).Str("realm_id", realmID).Msg("Failed to fetch company info, using default name")
	} else if info.CompanyName != "" {
		name = info.CompanyName
	}

	accessEnc, refreshEnc, err := s.encryptTokens(tok)
	if err != nil {
		return models.Client{}, err
	}

	var existingID, existingOwner string
	err = s.db.QueryRow("SELECT id, user_id FROM clients WHERE qb_realm_id = ?", realmID).Scan(&existingID, &existingOwner)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existingID = uuid.New().String()
		_, err = s.db.Exec(`INSERT INTO clients (`+clientColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, NULL, ?)`,
			existingID, userID, name, realmID, accessEnc, refreshEnc, tok.Expiry.UTC(), utcPtr(tok.RefreshTokenExpiry), s.environment, time.Now().UTC())
		if err != nil {
			return models.Client{}, fmt.Errorf("failed to create client: %w", err)
		}
	case err != nil:
		return models.Client{}, err
	case existingOwner != userID:
		return models.Client{}, fmt.Errorf("company %s is connected to another account: %w", realmID, ErrForbidden)
	default:
		_, err = s.db.Exec(`UPDATE clients SET name = ?, qb_access_token = ?, qb_refresh_token = ?, qb_token_expiry = ?, qb_refresh_token_expiry = ?, is_active = 1 WHERE id = ?`,
			name, accessEnc, refreshEnc, tok.Expiry.UTC(), utcPtr(tok.RefreshTokenExpiry), existingID)
		if err != nil {
			return models.Client{}, fmt.Errorf("failed to update client tokens: %w", err)
		}
	}

	client, err := s.getClient(existingID)
	if err != nil {
		return models.Client{}, err
	}

	if err := s.RefreshReferenceData(ctx, client, session); err != nil {
		log.Warn().Err(err).Str("client_id", client.ID).Msg("Failed to cache accounts and classes after connect")
	}

	s.eventService.CreateEvent(EventClientConnected, "info", fmt.Sprintf("Connected QuickBooks company %s", client.Name), &client.UserID, &client.ID)
	return client, nil
}

// GetClientsWithStats lists a user's clients with their review counters.
func (s *ClientService) GetClientsWithStats(userID string) ([]models.ClientWithStats, error) {
	rows, err := s.db.Query(`
		SELECT `+prefixed("c.", clientColumns)+`,
			(SELECT COUNT(*) FROM transactions t WHERE t.client_id = c.id AND t.status = 'PENDING'),
			(SELECT COUNT(*) FROM transactions t WHERE t.client_id = c.id),
			(SELECT AVG(l.was_correct) FROM learning_examples l WHERE l.client_id = c.id)
		FROM clients c
		WHERE c.user_id = ?
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := []models.ClientWithStats{}
	for rows.Next() {
		var cs models.ClientWithStats
		var accuracy sql.NullFloat64
		client, err := scanClient(rows, &cs.PendingTransactions, &cs.TotalTransactions, &accuracy)
		if err != nil {
			return nil, err
		}
		cs.Client = client
		if accuracy.Valid {
			cs.Accuracy = &accuracy.Float64
		}
		clients = append(clients, cs)
	}
	return clients, rows.Err()
}

// GetClientForUser returns a client only if it belongs to userID.
func (s *ClientService) GetClientForUser(userID, clientID string) (models.Client, error) {
	client, err := scanClient(s.db.QueryRow("SELECT "+clientColumns+" FROM clients WHERE id = ? AND user_id = ?", clientID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Client{}, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
		}
		return models.Client{}, err
	}
	return client, nil
}

func (s *ClientService) getClient(clientID string) (models.Client, error) {
	client, err := scanClient(s.db.QueryRow("SELECT "+clientColumns+" FROM clients WHERE id = ?", clientID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, fmt.Errorf("client %s: %w", clientID, ErrNotFound)
	}
	return client, err
}

// GetActiveClients returns every active client across all users.
func (s *ClientService) GetActiveClients() ([]models.Client, error) {
	rows, err := s.db.Query("SELECT " + clientColumns + " FROM clients WHERE is_active = 1 ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []models.Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

// Disconnect deletes a client and everything imported for it. Revoking the
// QuickBooks grant and removing the client's vectors are best effort.
func (s *ClientService) Disconnect(ctx context.Context, userID, clientID string) error {
	client, err := s.GetClientForUser(userID, clientID)
	if err != nil {
		return err
	}

	purgeVectors(ctx, s.db, s.vectors,
		"SELECT pinecone_id FROM learning_examples WHERE client_id = ? AND pinecone_id IS NOT NULL", clientID)

	if refresh, err := s.cipher.Decrypt(client.QBRefreshToken); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to decrypt refresh token for revocation")
	} else if err := s.qb.Revoke(ctx, refresh); err != nil {
		log.Warn().Err(err).Str("client_id", clientID).Msg("Failed to revoke QuickBooks token")
	}

	if _, err := s.db.Exec("DELETE FROM clients WHERE id = ?", clientID); err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}

	log.Info().Str("client_id", clientID).Str("user_id", userID).Msg("Client disconnected")
	s.eventService.CreateEvent(EventClientDisconnected, "info", fmt.Sprintf("Disconnected QuickBooks company %s", client.Name), &userID, nil)
	return nil
}

// Session returns API credentials for a client, refreshing the access token when
// it is about to expire. Refreshed tokens are stored before returning.
func (s *ClientService) Session(ctx context.Context, client models.Client) (quickbooks.Session, error) {
	if time.Until(client.QBTokenExpiry) > tokenRefreshSkew {
		access, err := s.cipher.Decrypt(client.QBAccessToken)
		if err != nil {
			return quickbooks.Session{}, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		return quickbooks.Session{RealmID: client.QBRealmID, AccessToken: access}, nil
	}

	refresh, err := s.cipher.Decrypt(client.QBRefreshToken)
	if err != nil {
		return quickbooks.Session{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	tok, err := s.qb.Refresh(ctx, refresh)
	if err != nil {
		s.eventService.CreateEvent(EventQuickBooksError, "error", fmt.Sprintf("QuickBooks authorization for %s expired, reconnect required", client.Name), &client.UserID, &client.ID)
		return quickbooks.Session{}, err
	}

	accessEnc, refreshEnc, err := s.encryptTokens(tok)
	if err != nil {
		return quickbooks.Session{}, err
	}
	_, err = s.db.Exec("UPDATE clients SET qb_access_token = ?, qb_refresh_token = ?, qb_token_expiry = ?, qb_refresh_token_expiry = COALESCE(?, qb_refresh_token_expiry) WHERE id = ?",
		accessEnc, refreshEnc, tok.Expiry.UTC(), utcPtr(tok.RefreshTokenExpiry), client.ID)
	if err != nil {
		return quickbooks.Session{}, fmt.Errorf("failed to store refreshed tokens: %w", err)
	}
	log.Debug().Str("client_id", client.ID).Msg("Refreshed QuickBooks access token")

	return quickbooks.Session{RealmID: client.QBRealmID, AccessToken: tok.AccessToken}, nil
}

// RefreshReferenceData caches the client's chart of accounts and classes.
func (s *ClientService) RefreshReferenceData(ctx context.Context, client models.Client, session quickbooks.Session) error {
	accounts, err := s.qb.FetchAccounts(ctx, session)
	if err != nil {
		return err
	}
	classes, err := s.qb.FetchClasses(ctx, session)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, a := range accounts {
		_, err := tx.Exec(`
			INSERT INTO qb_accounts (id, client_id, qb_id, name, fully_qualified_name, account_type, account_sub_type, classification, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(client_id, qb_id) DO UPDATE SET
				name = excluded.name, fully_qualified_name = excluded.fully_qualified_name, account_type = excluded.account_type,
				account_sub_type = excluded.account_sub_type, classification = excluded.classification, active = excluded.active`,
			uuid.New().String(), client.ID, a.ID, a.Name, a.FullyQualifiedName, a.AccountType, a.AccountSubType, a.Classification, a.Active)
		if err != nil {
			return fmt.Errorf("failed to cache account %s: %w", a.ID, err)
		}
	}
	for _, c := range classes {
		_, err := tx.Exec(`
			INSERT INTO qb_classes (id, client_id, qb_id, name, fully_qualified_name, active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(client_id, qb_id) DO UPDATE SET
				name = excluded.name, fully_qualified_name = excluded.fully_qualified_name, active = excluded.active`,
			uuid.New().String(), client.ID, c.ID, c.Name, c.FullyQualifiedName, c.Active)
		if err != nil {
			return fmt.Errorf("failed to cache class %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Info().Str("client_id", client.ID).Int("accounts", len(accounts)).Int("classes", len(classes)).Msg("Cached QuickBooks accounts and classes")
	return nil
}

// GetAccounts returns the client's active cached accounts.
func (s *ClientService) GetAccounts(clientID string) ([]models.QBAccount, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, qb_id, name, COALESCE(fully_qualified_name, ''), account_type,
			COALESCE(account_sub_type, ''), COALESCE(classification, ''), active
		FROM qb_accounts WHERE client_id = ? AND active = 1 ORDER BY name`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.QBAccount{}
	for rows.Next() {
		var a models.QBAccount
		if err := rows.Scan(&a.ID, &a.ClientID, &a.QBID, &a.Name, &a.FullyQualifiedName, &a.AccountType, &a.AccountSubType, &a.Classification, &a.Active); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetClasses returns the client's active cached classes.
func (s *ClientService) GetClasses(clientID string) ([]models.QBClass, error) {
	rows, err := s.db.Query(`
		SELECT id, client_id, qb_id, name, COALESCE(fully_qualified_name, ''), active
		FROM qb_classes WHERE client_id = ? AND active = 1 ORDER BY name`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	classes := []models.QBClass{}
	for rows.Next() {
		var c models.QBClass
		if err := rows.Scan(&c.ID, &c.ClientID, &c.QBID, &c.Name, &c.FullyQualifiedName, &c.Active); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// MarkSynced records the time of the last successful import.
func (s *ClientService) MarkSynced(clientID string, at time.Time) error {
	_, err := s.db.Exec("UPDATE clients SET last_sync_at = ? WHERE id = ?", at.UTC(), clientID)
	return err
}

func (s *ClientService) encryptTokens(tok quickbooks.Token) (string, string, error) {
	access, err := s.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	refresh, err := s.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, refresh, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = prefix + c
	}
	return strings.Join(cols, ", ")
}
