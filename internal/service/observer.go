package service

import (
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
)

// RelayRecord describes one finished relay, successful or not.
type RelayRecord struct {
	OwnerID   string
	SessionID string
	Provider  string
	Model     string
	ModelType domain.ModelType
	MessageID string
	Latency   time.Duration
	Usage     *domain.Usage
	TurnCount int
	Err       error
}

// RelayObserver is notified after every relay that reached a provider.
// Implementations must not block.
type RelayObserver interface {
	RelayFinished(rec RelayRecord)
}

// SessionObserver is notified when a session's live state changes.
// Implementations must not block.
type SessionObserver interface {
	SessionChanged(ownerID string, state domain.SessionState)
}

func (s *Service) notifyRelay(rec RelayRecord) {
	for _, o := range s.relayObs {
		o.RelayFinished(rec)
	}
}

func (s *Service) notifySession(ownerID string, state domain.SessionState) {
	for _, o := range s.stateObs {
		o.SessionChanged(ownerID, state)
	}
}
