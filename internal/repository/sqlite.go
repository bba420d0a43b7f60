package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/dualchat/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS configurations (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			api_key TEXT NOT NULL,
			model_a TEXT NOT NULL,
			model_b TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		// At most one active configuration per owner.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_configurations_active ON configurations(owner_id) WHERE is_active = 1`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			configuration_id TEXT NOT NULL,
			title TEXT NOT NULL,
			turn_count INTEGER NOT NULL DEFAULT 0,
			is_paused INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (configuration_id) REFERENCES configurations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_owner ON sessions(owner_id, created_at)`,
		// Message ids are unique per session so an exported transcript can be
		// re-imported next to its source.
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			model_type TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session_id, id),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartSession implements Store.
func (s *SQLiteStore) StartSession(ctx context.Context, cfg *domain.Configuration, session *domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE configurations SET is_active = 0 WHERE owner_id = ? AND is_active = 1`,
		cfg.OwnerID); err != nil {
		return fmt.Errorf("failed to deactivate configurations: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO configurations (id, owner_id, provider, api_key, model_a, model_b, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		cfg.ID, cfg.OwnerID, cfg.Provider, cfg.APIKey, cfg.ModelA, cfg.ModelB, cfg.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert configuration: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, configuration_id, title, turn_count, is_paused, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OwnerID, cfg.ID, session.Title, session.TurnCount, session.IsPaused, session.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	cfg.IsActive = true
	session.ConfigurationID = cfg.ID
	return nil
}

// GetActiveConfiguration retrieves the owner's active configuration.
func (s *SQLiteStore) GetActiveConfiguration(ctx context.Context, ownerID string) (*domain.Configuration, error) {
	var cfg domain.Configuration
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, provider, api_key, model_a, model_b, is_active, created_at
		 FROM configurations WHERE owner_id = ? AND is_active = 1`,
		ownerID).Scan(&cfg.ID, &cfg.OwnerID, &cfg.Provider, &cfg.APIKey, &cfg.ModelA, &cfg.ModelB, &cfg.IsActive, &cfg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CountActiveConfigurations counts the owner's active configurations.
func (s *SQLiteStore) CountActiveConfigurations(ctx context.Context, ownerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM configurations WHERE owner_id = ? AND is_active = 1`, ownerID).Scan(&n)
	return n, err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, configuration_id, title, turn_count, is_paused, created_at FROM sessions WHERE id = ?`,
		sessionID).Scan(&session.ID, &session.OwnerID, &session.ConfigurationID, &session.Title,
		&session.TurnCount, &session.IsPaused, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns the owner's sessions, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, ownerID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, configuration_id, title, turn_count, is_paused, created_at
		 FROM sessions WHERE owner_id = ? ORDER BY created_at DESC, rowid DESC`, ownerID)
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
func (s *SQLiteStore) SetSessionPaused(ctx context.Context, sessionID string, paused bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_paused = ? WHERE id = ?`, paused, sessionID)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// CreateMessage inserts a message; a repeated id is a no-op.
func (s *SQLiteStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO NOTHING`,
		message.ID, message.SessionID, string(message.ModelType), message.Content, message.CreatedAt.UTC())
	return err
}

// AppendReply implements Store.
func (s *SQLiteStore) AppendReply(ctx context.Context, message *domain.Message) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, id) DO NOTHING`,
		message.ID, message.SessionID, string(message.ModelType), message.Content, message.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	query := `SELECT turn_count FROM sessions WHERE id = ?`
	if inserted > 0 {
		query = `UPDATE sessions SET turn_count = turn_count + 1 WHERE id = ? RETURNING turn_count`
	}
	var turns int
	if err := tx.QueryRowContext(ctx, query, message.SessionID).Scan(&turns); err != nil {
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to update turn count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return turns, nil
}

// ListMessages returns the session's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, model_type, content, created_at FROM messages
		 WHERE session_id = ? ORDER BY created_at ASC, rowid ASC`, sessionID)
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
func (s *SQLiteStore) ImportSession(ctx context.Context, session *domain.Session, messages []domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, owner_id, configuration_id, title, turn_count, is_paused, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.OwnerID, session.ConfigurationID, session.Title, session.TurnCount,
		session.IsPaused, session.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, session_id, model_type, content, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range messages {
		if _, err := stmt.ExecContext(ctx, m.ID, session.ID, string(m.ModelType), m.Content, m.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// CreateEvent creates a new event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.Event) error {
	if event.Ts == 0 {
		event.Ts = time.Now().UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (event_id, session_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.SessionID, event.Ts, string(event.Type), nullableJSON(event.Payload))
	return err
}

// ListEvents retrieves events for a session.
func (s *SQLiteStore) ListEvents(ctx context.Context, sessionID string, filter EventFilter) ([]domain.Event, error) {
	query := `SELECT event_id, session_id, ts, type, payload FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if filter.AfterTs > 0 {
		query += ` AND ts > ?`
		args = append(args, filter.AfterTs)
	}

	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
	}

	query += ` ORDER BY ts ASC, rowid ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var event domain.Event
		var eventType string
		var payload sql.NullString
		if err := rows.Scan(&event.EventID, &event.SessionID, &event.Ts, &eventType, &payload); err != nil {
			return nil, err
		}
		event.Type = domain.EventType(eventType)
		if payload.Valid {
			event.Payload = json.RawMessage(payload.String)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
