package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/xiaot623/dualchat/internal/domain"
)

// InjectNote stores a steering note as a system message and keeps it pending
// until the next completed exchange. Notes are never sent to the models.
func (s *Service) InjectNote(ctx context.Context, ownerID, sessionID, note string) (*domain.Message, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &domain.InvalidRequestError{Reason: "note is required"}
	}
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ModelType: domain.ModelTypeSystem,
		Content:   note,
		CreatedAt: s.now().UTC(),
	}
	if err := s.withRetry(ctx, "store note", func(ctx context.Context) error {
		return s.store.CreateMessage(ctx, msg)
	}); err != nil {
		return nil, err
	}
	s.notes.add(sessionID, note)

	if err := s.recordEvent(ctx, sessionID, domain.EventTypeNoteInjected, domain.NoteInjectedPayload{
		MessageID: msg.ID,
		Note:      note,
	}); err != nil {
		s.logger.Warn("failed to record note_injected event", "session_id", sessionID, "error", err)
	}

	if state, err := s.sessionState(ctx, sessionID); err == nil {
		s.notifySession(ownerID, *state)
	}
	return msg, nil
}

// noteBook holds the pending notes of each session in memory.
type noteBook struct {
	mu    sync.Mutex
	notes map[string][]string
}

func newNoteBook() *noteBook {
	return &noteBook{notes: make(map[string][]string)}
}

func (b *noteBook) add(sessionID, note string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes[sessionID] = append(b.notes[sessionID], note)
}

func (b *noteBook) list(sessionID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.notes[sessionID]))
	copy(out, b.notes[sessionID])
	return out
}

func (b *noteBook) clear(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.notes, sessionID)
}
