package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/stream"
)

// Converse stores one user turn and relays it to each requested slot,
// presenting every reply through sink. Slots run concurrently; neither waits
// for the other. An empty slots list means both slots.
//
// Each slot's errors are reported to sink; the first one is also returned.
func (s *Service) Converse(ctx context.Context, ownerID, sessionID, content string, slots []domain.ModelType, presenter *stream.Presenter, sink stream.Sink) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return &domain.InvalidRequestError{Reason: "content is required"}
	}
	if len(slots) == 0 {
		slots = domain.Slots
	}
	for _, slot := range slots {
		if !slot.IsSlot() {
			return &domain.InvalidRequestError{Reason: "model_type must be A or B"}
		}
	}

	session, err := s.ownedSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	if session.IsPaused {
		return &domain.SessionPausedError{SessionID: sessionID}
	}

	userMsg := &domain.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		ModelType: domain.ModelTypeUser,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	if err := s.withRetry(ctx, "store user message", func(ctx context.Context) error {
		return s.store.CreateMessage(ctx, userMsg)
	}); err != nil {
		return err
	}

	stored, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return &domain.PersistenceError{Op: "list messages", Err: err}
	}

	var g errgroup.Group
	for _, slot := range slots {
		history := historyFor(stored, slot, s.config.MaxHistoryMessages)
		g.Go(func() error {
			_, err := presenter.Present(ctx, sink, sessionID, slot, func(ctx context.Context) (*domain.RelayResult, error) {
				return s.Relay(ctx, ownerID, domain.RelayRequest{
					SessionID: sessionID,
					ModelType: slot,
					Messages:  history,
				})
			})
			return err
		})
	}
	return g.Wait()
}

// historyFor builds what one slot sees: user turns and the slot's own replies.
// Steering notes and the other slot's replies are left out. At most limit
// trailing messages are kept when limit is positive, and the kept window never
// opens on an assistant turn since some vendors reject that.
func historyFor(messages []domain.Message, slot domain.ModelType, limit int) []domain.ChatMessage {
	history := make([]domain.ChatMessage, 0, len(messages))
	for _, m := range messages {
		switch m.ModelType {
		case domain.ModelTypeUser:
			history = append(history, domain.ChatMessage{Role: domain.RoleUser, Content: m.Content})
		case slot:
			history = append(history, domain.ChatMessage{Role: domain.RoleAssistant, Content: m.Content})
		}
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
		for len(history) > 0 && history[0].Role == domain.RoleAssistant {
			history = history[1:]
		}
	}
	return history
}
