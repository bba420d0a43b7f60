package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/policy"
)

// Relay forwards one conversation to the slot's model and stores the reply.
//
// Nothing reaches a provider unless the caller owns an active configuration,
// the session exists, belongs to the caller and is not paused, the provider
// and model are registered, and the admission policy allows the call.
// Exactly one message is stored per successful relay and none on failure.
func (s *Service) Relay(ctx context.Context, ownerID string, req domain.RelayRequest) (*domain.RelayResult, error) {
	if ownerID == "" {
		return nil, &domain.UnauthenticatedError{}
	}

	cfg, err := s.store.GetActiveConfiguration(ctx, ownerID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load configuration", Err: err}
	}
	if cfg == nil || !cfg.IsActive {
		return nil, &domain.NoActiveConfigurationError{OwnerID: ownerID}
	}

	session, err := s.ownedSession(ctx, ownerID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsPaused {
		return nil, &domain.SessionPausedError{SessionID: session.ID}
	}

	if !req.ModelType.IsSlot() {
		return nil, &domain.InvalidRequestError{Reason: "modelType must be A or B"}
	}
	if len(req.Messages) == 0 {
		return nil, &domain.InvalidRequestError{Reason: "messages is required"}
	}
	model := cfg.ModelFor(req.ModelType)

	if err := s.registry.Validate(cfg.Provider, model); err != nil {
		return nil, err
	}
	adapter, ok := s.adapters.Get(cfg.Provider)
	if !ok {
		return nil, &domain.UnsupportedProviderError{Provider: cfg.Provider}
	}

	if err := s.admit(ctx, ownerID, cfg.Provider, model, req); err != nil {
		return nil, err
	}

	// One exchange per slot at a time keeps a slot's replies in call order.
	release, err := s.slots.acquire(ctx, session.ID, req.ModelType)
	if err != nil {
		return nil, err
	}
	defer release()

	// A relay queued behind the slot lock is not dispatched yet; a pause that
	// landed while it waited refuses it.
	session, err = s.ownedSession(ctx, ownerID, session.ID)
	if err != nil {
		return nil, err
	}
	if session.IsPaused {
		return nil, &domain.SessionPausedError{SessionID: session.ID}
	}

	requestID := "rly_" + uuid.New().String()[:8]
	if err := s.recordEvent(ctx, session.ID, domain.EventTypeRelayStarted, domain.RelayStartedPayload{
		RequestID: requestID,
		Provider:  cfg.Provider,
		Model:     model,
		ModelType: req.ModelType,
		Messages:  len(req.Messages),
	}); err != nil {
		s.logger.Warn("failed to record relay_started event", "session_id", session.ID, "error", err)
	}

	rec := RelayRecord{
		OwnerID:   ownerID,
		SessionID: session.ID,
		Provider:  cfg.Provider,
		Model:     model,
		ModelType: req.ModelType,
	}

	startTime := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.config.ProviderTimeout)
	completion, err := adapter.Send(callCtx, cfg.APIKey, model, req.Messages)
	cancel()
	rec.Latency = time.Since(startTime)

	if err != nil {
		rec.Err = err
		s.finishRelay(ctx, requestID, rec, 0)
		return nil, &domain.RelayError{SessionID: session.ID, ModelType: req.ModelType, Model: model, Err: err}
	}
	rec.Usage = completion.Usage

	msg := &domain.Message{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		ModelType: req.ModelType,
		Content:   completion.Text,
		CreatedAt: s.now().UTC(),
	}
	turns, err := s.persistReply(ctx, msg)
	if err != nil {
		rec.Err = err
		s.finishRelay(ctx, requestID, rec, 0)
		return nil, err
	}
	rec.MessageID = msg.ID
	rec.TurnCount = turns
	s.finishRelay(ctx, requestID, rec, len([]rune(completion.Text)))

	return &domain.RelayResult{
		Content:   completion.Text,
		ModelUsed: model,
		MessageID: msg.ID,
		Usage:     completion.Usage,
		Latency:   rec.Latency,
	}, nil
}

// admit evaluates the admission policy.
func (s *Service) admit(ctx context.Context, ownerID, providerID, model string, req domain.RelayRequest) error {
	if s.policyEngine == nil {
		return nil
	}
	decision, err := s.policyEngine.Evaluate(ctx, policy.Input{
		OwnerID:            ownerID,
		Provider:           providerID,
		Model:              model,
		ModelType:          string(req.ModelType),
		MessageCount:       len(req.Messages),
		MaxHistoryMessages: s.config.MaxHistoryMessages,
	})
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}
	if !decision.Allowed() {
		return &domain.PolicyDeniedError{Reason: decision.Reason}
	}
	return nil
}

// persistReply stores the reply with bounded retries. The message id is fixed
// before the first attempt, so a retry after an unacknowledged commit stores
// nothing new and does not count the turn twice.
func (s *Service) persistReply(ctx context.Context, msg *domain.Message) (int, error) {
	var turns int
	err := s.withRetry(ctx, "persist message", func(ctx context.Context) error {
		var err error
		turns, err = s.store.AppendReply(ctx, msg)
		return err
	})
	return turns, err
}

// withRetry runs fn up to PersistRetries+1 times with linear backoff and
// reports the final failure as a *domain.PersistenceError.
func (s *Service) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	// The vendor may already have answered; a caller hanging up must not lose the write.
	ctx = context.WithoutCancel(ctx)

	attempts := s.config.PersistRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("persistence attempt failed", "op", op, "attempt", attempt, "error", err)
		if attempt < attempts {
			time.Sleep(time.Duration(attempt) * s.retryWait)
		}
	}
	return &domain.PersistenceError{Op: op, Err: lastErr}
}

// finishRelay records the terminal event and notifies observers.
func (s *Service) finishRelay(ctx context.Context, requestID string, rec RelayRecord, responseChars int) {
	payload := domain.RelayDonePayload{
		RequestID:     requestID,
		Provider:      rec.Provider,
		Model:         rec.Model,
		ModelType:     rec.ModelType,
		LatencyMs:     rec.Latency.Milliseconds(),
		ResponseChars: responseChars,
	}
	if rec.Usage != nil {
		payload.PromptTokens = rec.Usage.PromptTokens
		payload.CompletionTokens = rec.Usage.CompletionTokens
		payload.TotalTokens = rec.Usage.TotalTokens
	}
	eventType := domain.EventTypeRelayCompleted
	if rec.Err != nil {
		eventType = domain.EventTypeRelayFailed
		payload.Error = rec.Err.Error()
	}

	if err := s.recordEvent(context.WithoutCancel(ctx), rec.SessionID, eventType, payload); err != nil {
		s.logger.Warn("failed to record relay event", "type", eventType, "session_id", rec.SessionID, "error", err)
	}
	s.notifyRelay(rec)

	if rec.Err == nil {
		s.notes.clear(rec.SessionID)
		if state, err := s.sessionState(context.WithoutCancel(ctx), rec.SessionID); err == nil {
			s.notifySession(rec.OwnerID, *state)
		}
	}
}

// slotLocks serializes exchanges per (session, slot). An entry lives only
// while some exchange holds or waits for it.
type slotLocks struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	ch   chan struct{}
	refs int
}

func newSlotLocks() *slotLocks {
	return &slotLocks{locks: make(map[string]*slotLock)}
}

func (l *slotLocks) acquire(ctx context.Context, sessionID string, slot domain.ModelType) (func(), error) {
	key := sessionID + "/" + string(slot)

	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &slotLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.drop(key, lk)
		}, nil
	case <-ctx.Done():
		l.drop(key, lk)
		return nil, ctx.Err()
	}
}

func (l *slotLocks) drop(key string, lk *slotLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// size reports how many (session, slot) entries are live.
func (l *slotLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// ownedSession loads a session and hides sessions of other owners.
func (s *Service) ownedSession(ctx context.Context, ownerID, sessionID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, &domain.InvalidRequestError{Reason: "sessionId is required"}
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "load session", Err: err}
	}
	if session == nil || session.OwnerID != ownerID {
		return nil, &domain.SessionNotFoundError{SessionID: sessionID}
	}
	return session, nil
}
