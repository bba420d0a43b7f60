package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/repository"
)

// ListProviders returns the provider catalog.
func (s *Service) ListProviders() []domain.ProviderDescriptor {
	return s.registry.List()
}

// StartSession deactivates the owner's previous configurations, stores the
// new active one and opens a session bound to it, all in one transaction.
func (s *Service) StartSession(ctx context.Context, ownerID string, req domain.StartSessionRequest) (*domain.StartSessionResponse, error) {
	if ownerID == "" {
		return nil, &domain.UnauthenticatedError{}
	}

	req.Provider = strings.TrimSpace(req.Provider)
	req.APIKey = strings.TrimSpace(req.APIKey)
	switch {
	case req.Provider == "":
		return nil, &domain.InvalidRequestError{Reason: "provider is required"}
	case req.APIKey == "":
		return nil, &domain.InvalidRequestError{Reason: "apiKey is required"}
	case req.ModelA == "" || req.ModelB == "":
		return nil, &domain.InvalidRequestError{Reason: "modelA and modelB are required"}
	}

	if err := s.registry.Validate(req.Provider, req.ModelA, req.ModelB); err != nil {
		return nil, err
	}
	if _, ok := s.adapters.Get(req.Provider); !ok {
		return nil, &domain.UnsupportedProviderError{Provider: req.Provider}
	}

	now := s.now().UTC()
	cfg := &domain.Configuration{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Provider:  req.Provider,
		APIKey:    req.APIKey,
		ModelA:    req.ModelA,
		ModelB:    req.ModelB,
		CreatedAt: now,
	}
	session := &domain.Session{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Title:     "Session " + now.Format(time.RFC1123),
		CreatedAt: now,
	}

	if err := s.store.StartSession(ctx, cfg, session); err != nil {
		return nil, &domain.PersistenceError{Op: "start session", Err: err}
	}

	s.logger.Info("session started", "owner_id", ownerID, "session_id", session.ID, "provider", cfg.Provider)
	s.notifySession(ownerID, domain.SessionState{SessionID: session.ID, PendingNotes: []string{}, IsActive: true})

	return &domain.StartSessionResponse{Session: session, Config: cfg}, nil
}

// GetActiveConfiguration returns the owner's active configuration.
func (s *Service) GetActiveConfiguration(ctx context.Context, ownerID string) (*domain.Configuration, error) {
	cfg, err := s.store.GetActiveConfiguration(ctx, ownerID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load configuration", Err: err}
	}
	if cfg == nil {
		return nil, &domain.NoActiveConfigurationError{OwnerID: ownerID}
	}
	return cfg, nil
}

// ListSessions returns the owner's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, ownerID string) ([]domain.Session, error) {
	sessions, err := s.store.ListSessions(ctx, ownerID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list sessions", Err: err}
	}
	return sessions, nil
}

// GetSession returns one of the owner's sessions.
func (s *Service) GetSession(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	return s.ownedSession(ctx, ownerID, sessionID)
}

// ListMessages returns a session's messages, oldest first.
func (s *Service) ListMessages(ctx context.Context, ownerID, sessionID string) ([]domain.Message, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list messages", Err: err}
	}
	return messages, nil
}

// PauseSession stops new relays for the session. Relays already in flight finish.
func (s *Service) PauseSession(ctx context.Context, ownerID, sessionID string) (*domain.SessionState, error) {
	return s.setPaused(ctx, ownerID, sessionID, true)
}

// ResumeSession accepts relays again.
func (s *Service) ResumeSession(ctx context.Context, ownerID, sessionID string) (*domain.SessionState, error) {
	return s.setPaused(ctx, ownerID, sessionID, false)
}

func (s *Service) setPaused(ctx context.Context, ownerID, sessionID string, paused bool) (*domain.SessionState, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	if err := s.store.SetSessionPaused(ctx, sessionID, paused); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.SessionNotFoundError{SessionID: sessionID}
		}
		return nil, &domain.PersistenceError{Op: "update session", Err: err}
	}

	state, err := s.sessionState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.notifySession(ownerID, *state)
	return state, nil
}

// SessionState returns the live view of one of the owner's sessions.
func (s *Service) SessionState(ctx context.Context, ownerID, sessionID string) (*domain.SessionState, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	return s.sessionState(ctx, sessionID)
}

// sessionState builds the live view. A session is active while its
// configuration is the owner's active one.
func (s *Service) sessionState(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load session", Err: err}
	}
	if session == nil {
		return nil, &domain.SessionNotFoundError{SessionID: sessionID}
	}
	cfg, err := s.store.GetActiveConfiguration(ctx, session.OwnerID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load configuration", Err: err}
	}

	return &domain.SessionState{
		SessionID:    session.ID,
		TurnCount:    session.TurnCount,
		IsPaused:     session.IsPaused,
		PendingNotes: s.notes.list(session.ID),
		IsActive:     cfg != nil && cfg.ID == session.ConfigurationID,
	}, nil
}
