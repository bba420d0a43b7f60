// Package repository is the persistence gateway for configurations, sessions,
// messages and relay events.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/xiaot623/dualchat/internal/domain"
)

// ErrNotFound is returned by updates that match no row.
var ErrNotFound = errors.New("not found")

// Store defines the interface for data persistence.
//
// Getters return (nil, nil) when the row does not exist.
type Store interface {
	// Configuration and session operations

	// StartSession atomically deactivates every configuration of cfg.OwnerID,
	// inserts cfg as the active one and inserts session bound to it.
	StartSession(ctx context.Context, cfg *domain.Configuration, session *domain.Session) error
	GetActiveConfiguration(ctx context.Context, ownerID string) (*domain.Configuration, error)
	CountActiveConfigurations(ctx context.Context, ownerID string) (int, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, ownerID string) ([]domain.Session, error)
	SetSessionPaused(ctx context.Context, sessionID string, paused bool) error

	// Message operations

	// CreateMessage inserts message unless a row with the same id exists.
	CreateMessage(ctx context.Context, message *domain.Message) error
	// AppendReply inserts a model reply and bumps the session's turn count in
	// one transaction, returning the new count. Replaying the same message id
	// inserts nothing and leaves the count unchanged.
	AppendReply(ctx context.Context, message *domain.Message) (int, error)
	ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error)
	// ImportSession inserts session and its messages in one transaction.
	ImportSession(ctx context.Context, session *domain.Session, messages []domain.Message) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, sessionID string, filter EventFilter) ([]domain.Event, error)

	// Lifecycle
	Close() error
}

// EventFilter provides filtering options for events.
type EventFilter struct {
	AfterTs int64
	Types   []string
	Limit   int
}

// Open picks the implementation from the DSN: postgres:// and postgresql://
// URLs use Postgres, anything else is a SQLite DSN.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
