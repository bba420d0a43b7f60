// Package service implements the relay dispatcher and the session lifecycle.
package service

import (
	"log/slog"
	"time"

	"github.com/xiaot623/dualchat/internal/adapter/provider"
	"github.com/xiaot623/dualchat/internal/config"
	"github.com/xiaot623/dualchat/internal/policy"
	"github.com/xiaot623/dualchat/internal/registry"
	"github.com/xiaot623/dualchat/internal/repository"
)

// Service owns the dispatcher and every session operation.
type Service struct {
	store        repository.Store
	registry     *registry.Registry
	adapters     *provider.Set
	config       *config.Config
	policyEngine *policy.Engine
	logger       *slog.Logger

	notes     *noteBook
	slots     *slotLocks
	relayObs  []RelayObserver
	stateObs  []SessionObserver
	now       func() time.Time
	retryWait time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPolicy installs the admission policy. Without one every relay is admitted.
func WithPolicy(e *policy.Engine) Option {
	return func(s *Service) { s.policyEngine = e }
}

// WithRelayObserver registers an observer of finished relays.
func WithRelayObserver(o RelayObserver) Option {
	return func(s *Service) { s.relayObs = append(s.relayObs, o) }
}

// WithSessionObserver registers an observer of session state changes.
func WithSessionObserver(o SessionObserver) Option {
	return func(s *Service) { s.stateObs = append(s.stateObs, o) }
}

// WithRetryWait sets the base backoff between persistence retries.
func WithRetryWait(d time.Duration) Option {
	return func(s *Service) { s.retryWait = d }
}

// New creates the service.
func New(store repository.Store, reg *registry.Registry, adapters *provider.Set, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		registry:  reg,
		adapters:  adapters,
		config:    cfg,
		logger:    slog.Default(),
		notes:     newNoteBook(),
		slots:     newSlotLocks(),
		now:       time.Now,
		retryWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
