package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaot623/dualchat/internal/domain"
)

// DB abstracts the pgx methods PostgresStore needs. *pgxpool.Pool and
// pgxmock pools satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore connects a pool to dsn and ensures the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	store := NewPostgresStoreWithDB(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewPostgresStoreWithDB wraps an existing pool without touching the schema.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS configurations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		api_key TEXT NOT NULL,
		model_a TEXT NOT NULL,
		model_b TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_configurations_active ON configurations(owner_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		configuration_id TEXT NOT NULL REFERENCES configurations(id),
		title TEXT NOT NULL,
		turn_count INTEGER NOT NULL DEFAULT 0,
		is_paused BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT NOT NULL,
		seq BIGSERIAL NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		model_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at, seq)`,
	`CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		seq BIGSERIAL NOT NULL,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		ts BIGINT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

// StartSession implements Store.
func (s *PostgresStore) StartSession(ctx context.Context, cfg *domain.Configuration, session *domain.Session) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	// Under read committed the UPDATE below cannot see a concurrent start's
	// insert, so starts of one owner are serialized on a transaction-scoped
	// advisory lock instead.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, cfg.OwnerID); err != nil {
		return fmt.Errorf("failed to lock owner: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE configurations SET is_active = false WHERE owner_id = $1 AND is_active`,
		cfg.OwnerID); err != nil {
		return fmt.Errorf("failed to deactivate configurations: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO configurations (id, owner_id, provider, api_key, model_a, model_b, is_active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, true, $7)`,
		cfg.ID, cfg.OwnerID, cfg.Provider, cfg.APIKey, cfg.ModelA, cfg.ModelB, cfg.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert configuration: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, owner_id, configuration_id, title, turn_count, is_paused, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.OwnerID, cfg.ID, session.Title, session.TurnCount, session.IsPaused, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	cfg.IsActive = true
	session.ConfigurationID = cfg.ID
	return nil
}

// GetActiveConfiguration retrieves the owner's active configuration.
func (s *PostgresStore) GetActiveConfiguration(ctx context.Context, ownerID string) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, provider, api_key, model_a, model_b, is_active, created_at
		 FROM configurations WHERE owner_id = $1 AND is_active`,
		ownerID).Scan(&cfg.ID, &cfg.OwnerID, &cfg.Provider, &cfg.APIKey, &cfg.ModelA, &cfg.ModelB, &cfg.IsActive, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CountActiveConfigurations counts the owner's active configurations.
func (s *PostgresStore) CountActiveConfigurations(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM configurations WHERE owner_id = $1 AND is_active`, ownerID).Scan(&n)
	return n, err
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRow(ctx,
		`SELECT id, owner_id, configuration_id, title, turn_count, is_paused, created_at FROM sessions WHERE id = $1`,
		sessionID).Scan(&session.ID, &session.OwnerID, &session.ConfigurationID, &session.Title,
		&session.TurnCount, &session.IsPaused, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns the owner's sessions, newest first.
func (s *PostgresStore) ListSessions(ctx context.Context, ownerID string) ([]domain.Session, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, owner_id, configuration_id, title, turn_count, is_paused, created_at
		 FROM sessions WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(&session.ID, &session.OwnerID, &session.ConfigurationID, &session.Title,
			&session.TurnCount, &session.IsPaused, &session.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// SetSessionPaused sets the pause flag of a session.
func (s *PostgresStore) SetSessionPaused(ctx context.Context, sessionID string, paused bool) error {
	tag, err := s.db.Exec(ctx, `UPDATE sessions SET is_paused = $1 WHERE id = $2`, paused, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateMessage inserts a message; a repeated id is a no-op.
func (s *PostgresStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, id) DO NOTHING`,
		message.ID, message.SessionID, string(message.ModelType), message.Content, message.CreatedAt)
	return err
}

// AppendReply implements Store.
func (s *PostgresStore) AppendReply(ctx context.Context, message *domain.Message) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, id) DO NOTHING`,
		message.ID, message.SessionID, string(message.ModelType), message.Content, message.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	query := `SELECT turn_count FROM sessions WHERE id = $1`
	if tag.RowsAffected() > 0 {
		query = `UPDATE sessions SET turn_count = turn_count + 1 WHERE id = $1 RETURNING turn_count`
	}
	var turns int
	if err := tx.QueryRow(ctx, query, message.SessionID).Scan(&turns); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to update turn count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return turns, nil
}

// ListMessages returns the session's messages in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, session_id, model_type, content, created_at FROM messages
		 WHERE session_id = $1 ORDER BY created_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var msg domain.Message
		var modelType string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &modelType, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ModelType = domain.ModelType(modelType)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ImportSession implements Store.
func (s *PostgresStore) ImportSession(ctx context.Context, session *domain.Session, messages []domain.Message) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, owner_id, configuration_id, title, turn_count, is_paused, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.OwnerID, session.ConfigurationID, session.Title, session.TurnCount,
		session.IsPaused, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	for _, m := range messages {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
			m.ID, session.ID, string(m.ModelType), m.Content, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// CreateEvent creates a new event.
func (s *PostgresStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}
	var payload []byte
	if len(event.Payload) > 0 {
		payload = event.Payload
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES ($1, $2, $3, $4, $5)`,
		event.EventID, event.SessionID, event.Ts, string(event.Type), payload)
	return err
}

// ListEvents retrieves events for a session.
func (s *PostgresStore) ListEvents(ctx context.Context, sessionID string, filter EventFilter) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = $1`
	args := []any{sessionID}

	if filter.AfterTs > 0 {
		args = append(args, filter.AfterTs)
		query += fmt.Sprintf(" AND ts > $%d", len(args))
	}
	if len(filter.Types) > 0 {
		args = append(args, filter.Types)
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}

	query += ` ORDER BY ts ASC, seq ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var eventType string
		var payload []byte
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &eventType, &payload); err != nil {
			return nil, err
		}
		event.Type = domain.EventType(eventType)
		if len(payload) > 0 {
			event.Payload = json.RawMessage(payload)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
