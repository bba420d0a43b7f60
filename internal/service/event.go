package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/repository"
)

// recordEvent records an event to the store.
func (s *Service) recordEvent(ctx context.Context, sessionID string, eventType domain.EventType, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &domain.Event{
		EventID:   "evt_" + uuid.New().String(),
		SessionID: sessionID,
		Ts:        time.Now().UnixMilli(),
		Type:      eventType,
		Payload:   payloadBytes,
	}

	return s.store.CreateEvent(ctx, event)
}

// ListRelayEvents returns the accounting events of one of the owner's sessions.
func (s *Service) ListRelayEvents(ctx context.Context, ownerID, sessionID string, filter repository.EventFilter) ([]domain.Event, error) {
	if _, err := s.ownedSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, sessionID, filter)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list events", Err: err}
	}
	return events, nil
}
