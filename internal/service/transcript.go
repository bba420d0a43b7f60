package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/export"
)

// ExportSession renders one of the owner's sessions.
func (s *Service) ExportSession(ctx context.Context, ownerID, sessionID string, opts export.Options) (*export.File, error) {
	if err := opts.Validate(); err != nil {
		return nil, &domain.InvalidRequestError{Reason: err.Error()}
	}
	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list messages", Err: err}
	}

	file, err := export.Render(export.Transcript{Session: *session, Messages: messages}, opts, s.now())
	if err != nil {
		return nil, &domain.InvalidRequestError{Reason: err.Error()}
	}
	return file, nil
}

// ImportSession recreates a JSON export as a new session of the owner, bound
// to the owner's active configuration. Message ids, authors, content,
// timestamps and order are kept.
func (s *Service) ImportSession(ctx context.Context, ownerID string, data []byte) (*domain.Session, error) {
	imported, err := export.ParseJSON(data)
	if err != nil {
		return nil, &domain.InvalidRequestError{Reason: err.Error()}
	}

	cfg, err := s.GetActiveConfiguration(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	turns := 0
	for _, m := range imported.Messages {
		if m.ModelType.IsSlot() {
			turns++
		}
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		ConfigurationID: cfg.ID,
		Title:           export.ImportedTitle(imported.Title, now),
		TurnCount:       turns,
		CreatedAt:       now,
	}
	for i := range imported.Messages {
		imported.Messages[i].SessionID = session.ID
	}

	if err := s.store.ImportSession(ctx, session, imported.Messages); err != nil {
		return nil, &domain.PersistenceError{Op: "import session", Err: err}
	}
	s.logger.Info("session imported", "owner_id", ownerID, "session_id", session.ID, "messages", len(imported.Messages))
	return session, nil
}
