package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dualchat/internal/adapter/provider"
	"github.com/xiaot623/dualchat/internal/config"
	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/export"
	"github.com/xiaot623/dualchat/internal/policy"
	"github.com/xiaot623/dualchat/internal/registry"
	"github.com/xiaot623/dualchat/internal/repository"
	"github.com/xiaot623/dualchat/internal/stream"
)

// spyAdapter records every call and answers with a fixed reply.
type spyAdapter struct {
	mu    sync.Mutex
	calls []spyCall
	reply func(model string) string
	err   error
}

type spyCall struct {
	model    string
	messages []domain.ChatMessage
}

func (a *spyAdapter) Name() string { return "Spy" }

func (a *spyAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*provider.Completion, error) {
	a.mu.Lock()
	a.calls = append(a.calls, spyCall{model: model, messages: messages})
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	text := "reply from " + model
	if a.reply != nil {
		text = a.reply(model)
	}
	return &provider.Completion{Text: text, Usage: &domain.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}}, nil
}

func (a *spyAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type recordingObserver struct {
	mu     sync.Mutex
	relays []RelayRecord
	states []domain.SessionState
}

func (o *recordingObserver) RelayFinished(rec RelayRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.relays = append(o.relays, rec)
}

func (o *recordingObserver) SessionChanged(ownerID string, state domain.SessionState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func testConfig() *config.Config {
	return &config.Config{
		ProviderTimeout:    time.Second,
		PersistRetries:     2,
		MaxHistoryMessages: 200,
		StreamChunkSize:    4,
	}
}

type harness struct {
	svc   *Service
	store repository.Store
	spy   *spyAdapter
	obs   *recordingObserver
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return newHarnessWithStore(t, store, opts...)
}

func newHarnessWithStore(t *testing.T, store repository.Store, opts ...Option) *harness {
	t.Helper()
	spy := &spyAdapter{}
	set := provider.NewSet()
	for _, id := range registry.Default().List() {
		set.Register(id.ID, spy)
	}
	obs := &recordingObserver{}
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRelayObserver(obs),
		WithSessionObserver(obs),
		WithRetryWait(time.Millisecond),
	}, opts...)
	svc := New(store, registry.Default(), set, testConfig(), opts...)
	return &harness{svc: svc, store: store, spy: spy, obs: obs}
}

func (h *harness) start(t *testing.T, owner string) *domain.StartSessionResponse {
	t.Helper()
	resp, err := h.svc.StartSession(context.Background(), owner, domain.StartSessionRequest{
		Provider: "openai", APIKey: "sk-test-key-123456", ModelA: "gpt-4o", ModelB: "gpt-4o-mini",
	})
	require.NoError(t, err)
	return resp
}

var hi = []domain.ChatMessage{{Role: domain.RoleUser, Content: "hi"}}

func TestRelayConcreteOpenAIScenario(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer sk-test-key-123456", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`)
	}))
	defer srv.Close()

	h := newHarness(t)
	h.svc.adapters.Register(provider.OpenAI, provider.NewOpenAI(srv.Client()).WithBaseURL(srv.URL))
	started := h.start(t, "u1")
	sessionID := started.Session.ID

	res, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Content)
	assert.Equal(t, "gpt-4o", res.ModelUsed)
	assert.Equal(t, int32(1), calls.Load())

	msgs, err := h.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sessionID, msgs[0].SessionID)
	assert.Equal(t, domain.ModelTypeA, msgs[0].ModelType)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, res.MessageID, msgs[0].ID)

	session, _ := h.store.GetSession(context.Background(), sessionID)
	assert.Equal(t, 1, session.TurnCount)
}

func TestRelayStoresSlotModelType(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID

	want := map[domain.ModelType]string{domain.ModelTypeA: "gpt-4o", domain.ModelTypeB: "gpt-4o-mini"}
	for _, slot := range domain.Slots {
		res, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: slot, Messages: hi})
		require.NoError(t, err)
		assert.Equal(t, want[slot], res.ModelUsed)
		assert.Equal(t, "reply from "+want[slot], res.Content)
	}

	msgs, _ := h.store.ListMessages(context.Background(), sessionID)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.ModelTypeA, msgs[0].ModelType)
	assert.Equal(t, domain.ModelTypeB, msgs[1].ModelType)

	for _, bad := range []domain.ModelType{domain.ModelTypeUser, domain.ModelTypeSystem, ""} {
		_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: bad, Messages: hi})
		var invalid *domain.InvalidRequestError
		assert.ErrorAs(t, err, &invalid)
	}
	assert.Equal(t, 2, h.spy.callCount())
}

func TestStartSessionUnknownVendorMakesNoCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls.Add(1) }))
	defer srv.Close()

	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), "u1", domain.StartSessionRequest{
		Provider: "unknown-vendor", APIKey: "k", ModelA: "m1", ModelB: "m2",
	})
	var unsupported *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "unknown-vendor", unsupported.Provider)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, h.spy.callCount())

	_, err = h.svc.GetActiveConfiguration(context.Background(), "u1")
	var noCfg *domain.NoActiveConfigurationError
	assert.ErrorAs(t, err, &noCfg)
}

func TestRelayUnknownVendorConfigurationMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	now := time.Now()
	cfg := &domain.Configuration{ID: "c1", OwnerID: "u1", Provider: "unknown-vendor", APIKey: "k", ModelA: "x", ModelB: "y", CreatedAt: now}
	session := &domain.Session{ID: "s1", OwnerID: "u1", Title: "t", CreatedAt: now}
	require.NoError(t, h.store.StartSession(context.Background(), cfg, session))

	_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: "s1", ModelType: domain.ModelTypeA, Messages: hi})
	var unsupported *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, 0, h.spy.callCount())
}

func TestRelayUnknownModelMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), "u1", domain.StartSessionRequest{
		Provider: "openai", APIKey: "k", ModelA: "gpt-4o", ModelB: "not-a-model",
	})
	var unsupported *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "not-a-model", unsupported.Model)
}

func TestRelayPausedSessionNoCallsNoWrites(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID

	state, err := h.svc.PauseSession(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	assert.True(t, state.IsPaused)

	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	var paused *domain.SessionPausedError
	require.ErrorAs(t, err, &paused)
	assert.Equal(t, 0, h.spy.callCount())

	msgs, _ := h.store.ListMessages(context.Background(), sessionID)
	assert.Empty(t, msgs)

	_, err = h.svc.ResumeSession(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)
}

// gatedAdapter holds every call until release is closed.
type gatedAdapter struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (a *gatedAdapter) Name() string { return "Gated" }

func (a *gatedAdapter) Send(ctx context.Context, apiKey, model string, messages []domain.ChatMessage) (*provider.Completion, error) {
	a.calls.Add(1)
	a.entered <- struct{}{}
	select {
	case <-a.release:
		return &provider.Completion{Text: "slow reply"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRelayQueuedBehindSlotRefusedAfterPause(t *testing.T) {
	h := newHarness(t)
	gated := &gatedAdapter{entered: make(chan struct{}, 2), release: make(chan struct{})}
	h.svc.adapters.Register(provider.OpenAI, gated)
	sessionID := h.start(t, "u1").Session.ID
	req := domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi}

	errs := make(chan error, 2)
	go func() {
		_, err := h.svc.Relay(context.Background(), "u1", req)
		errs <- err
	}()
	<-gated.entered

	go func() {
		_, err := h.svc.Relay(context.Background(), "u1", req)
		errs <- err
	}()
	key := sessionID + "/" + string(domain.ModelTypeA)
	require.Eventually(t, func() bool {
		h.svc.slots.mu.Lock()
		defer h.svc.slots.mu.Unlock()
		lk := h.svc.slots.locks[key]
		return lk != nil && lk.refs == 2
	}, time.Second, time.Millisecond)

	_, err := h.svc.PauseSession(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	close(gated.release)

	var succeeded, paused int
	for i := 0; i < 2; i++ {
		err := <-errs
		var pausedErr *domain.SessionPausedError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &pausedErr):
			paused++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "the dispatched relay finishes")
	assert.Equal(t, 1, paused, "the queued relay is refused")
	assert.Equal(t, int32(1), gated.calls.Load())

	msgs, err := h.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, 0, h.svc.slots.size())
}

func TestSlotLocksReleaseIdleEntries(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID

	for _, slot := range domain.Slots {
		_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: slot, Messages: hi})
		require.NoError(t, err)
	}
	assert.Equal(t, 0, h.svc.slots.size())

	release, err := h.svc.slots.acquire(context.Background(), sessionID, domain.ModelTypeA)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h.svc.slots.acquire(ctx, sessionID, domain.ModelTypeA)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.svc.slots.size())

	release()
	assert.Equal(t, 0, h.svc.slots.size())
}

func TestRelayRequiresActiveConfigurationAndOwnership(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: "s1", ModelType: domain.ModelTypeA, Messages: hi})
	var noCfg *domain.NoActiveConfigurationError
	require.ErrorAs(t, err, &noCfg)
	assert.Equal(t, "No active AI configuration found", err.Error())

	sessionID := h.start(t, "u1").Session.ID
	h.start(t, "u2")

	_, err = h.svc.Relay(context.Background(), "u2", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	var notFound *domain.SessionNotFoundError
	require.ErrorAs(t, err, &notFound)

	_, err = h.svc.Relay(context.Background(), "", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	var unauth *domain.UnauthenticatedError
	require.ErrorAs(t, err, &unauth)
	assert.Equal(t, 0, h.spy.callCount())
}

func TestStartSessionKeepsSingleActiveConfiguration(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "u1")
	second := h.start(t, "u1")

	n, err := h.store.CountActiveConfigurations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := h.svc.GetActiveConfiguration(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, second.Config.ID, active.ID)

	state, err := h.svc.SessionState(context.Background(), "u1", first.Session.ID)
	require.NoError(t, err)
	assert.False(t, state.IsActive)

	errs := make([]error, 5)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.StartSession(context.Background(), "u1", domain.StartSessionRequest{
				Provider: "anthropic", APIKey: "k", ModelA: "claude-3-5-sonnet-20241022", ModelB: "claude-3-haiku-20240307",
			})
		}()
	}
	wg.Wait()
	for i, err := range errs {
		assert.NoError(t, err, "concurrent start %d", i)
	}

	n, err = h.store.CountActiveConfigurations(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStartSessionValidation(t *testing.T) {
	h := newHarness(t)
	cases := []domain.StartSessionRequest{
		{APIKey: "k", ModelA: "gpt-4o", ModelB: "gpt-4o"},
		{Provider: "openai", ModelA: "gpt-4o", ModelB: "gpt-4o"},
		{Provider: "openai", APIKey: "k", ModelA: "gpt-4o"},
	}
	for _, req := range cases {
		_, err := h.svc.StartSession(context.Background(), "u1", req)
		var invalid *domain.InvalidRequestError
		assert.ErrorAs(t, err, &invalid)
	}

	_, err := h.svc.StartSession(context.Background(), "", domain.StartSessionRequest{})
	var unauth *domain.UnauthenticatedError
	assert.ErrorAs(t, err, &unauth)
}

func TestRelayProviderErrorPassesThrough(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID
	h.spy.err = &domain.ProviderError{Vendor: "OpenAI", Message: "Rate limit reached", StatusCode: 429}

	_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeB, Messages: hi})
	var relayErr *domain.RelayError
	require.ErrorAs(t, err, &relayErr)
	assert.Equal(t, domain.ModelTypeB, relayErr.ModelType)
	assert.Equal(t, "gpt-4o-mini", relayErr.Model)

	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Same(t, h.spy.err, perr)
	assert.Equal(t, "OpenAI API error: Rate limit reached", err.Error())

	msgs, _ := h.store.ListMessages(context.Background(), sessionID)
	assert.Empty(t, msgs)

	events, err := h.svc.ListRelayEvents(context.Background(), "u1", sessionID, repository.EventFilter{Types: []string{string(domain.EventTypeRelayFailed)}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), "Rate limit reached")
}

func TestRelayTimeoutBecomesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	h := newHarness(t)
	h.svc.config.ProviderTimeout = 50 * time.Millisecond
	h.svc.adapters.Register(provider.OpenAI, provider.NewOpenAI(srv.Client()).WithBaseURL(srv.URL))
	sessionID := h.start(t, "u1").Session.ID

	_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Message, "timed out")
}

func TestRelayPolicyDenied(t *testing.T) {
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)

	h := newHarness(t, WithPolicy(engine))
	h.svc.config.MaxHistoryMessages = 1
	sessionID := h.start(t, "u1").Session.ID

	long := []domain.ChatMessage{{Role: domain.RoleUser, Content: "a"}, {Role: domain.RoleAssistant, Content: "b"}}
	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: long})
	var denied *domain.PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 0, h.spy.callCount())

	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)
}

// flakyStore fails AppendReply a fixed number of times.
type flakyStore struct {
	repository.Store
	failures atomic.Int32
	attempts atomic.Int32
}

func (s *flakyStore) AppendReply(ctx context.Context, msg *domain.Message) (int, error) {
	s.attempts.Add(1)
	if s.failures.Add(-1) >= 0 {
		return 0, errors.New("database is locked")
	}
	return s.Store.AppendReply(ctx, msg)
}

func TestRelayPersistenceRetries(t *testing.T) {
	base, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer base.Close()

	flaky := &flakyStore{Store: base}
	h := newHarnessWithStore(t, flaky)
	sessionID := h.start(t, "u1").Session.ID

	flaky.failures.Store(2)
	res, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)
	assert.Equal(t, int32(3), flaky.attempts.Load())

	msgs, _ := base.ListMessages(context.Background(), sessionID)
	require.Len(t, msgs, 1)
	assert.Equal(t, res.MessageID, msgs[0].ID)

	// Exhausted retries surface the failure instead of dropping the reply silently.
	flaky.attempts.Store(0)
	flaky.failures.Store(10)
	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, int32(3), flaky.attempts.Load())
	assert.Equal(t, domain.CodePersistenceError, domain.ErrorCode(err))
}

func TestRelayRecordsEventsAndNotifies(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID

	_, err := h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)

	events, err := h.svc.ListRelayEvents(context.Background(), "u1", sessionID, repository.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTypeRelayStarted, events[0].Type)
	assert.Equal(t, domain.EventTypeRelayCompleted, events[1].Type)
	assert.Contains(t, string(events[1].Payload), `"total_tokens":5`)

	h.obs.mu.Lock()
	defer h.obs.mu.Unlock()
	require.Len(t, h.obs.relays, 1)
	rec := h.obs.relays[0]
	assert.NoError(t, rec.Err)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, 1, rec.TurnCount)
	assert.Equal(t, 5, rec.Usage.TotalTokens)
	assert.NotEmpty(t, h.obs.states)
}

func TestInjectNotePendingUntilNextExchange(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID

	_, err := h.svc.InjectNote(context.Background(), "u1", sessionID, "   ")
	var invalid *domain.InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	msg, err := h.svc.InjectNote(context.Background(), "u1", sessionID, "focus on cost")
	require.NoError(t, err)
	assert.Equal(t, domain.ModelTypeSystem, msg.ModelType)

	state, err := h.svc.SessionState(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{"focus on cost"}, state.PendingNotes)

	_, err = h.svc.Relay(context.Background(), "u1", domain.RelayRequest{SessionID: sessionID, ModelType: domain.ModelTypeA, Messages: hi})
	require.NoError(t, err)

	state, err = h.svc.SessionState(context.Background(), "u1", sessionID)
	require.NoError(t, err)
	assert.Empty(t, state.PendingNotes)
	assert.Equal(t, 1, state.TurnCount)
}

type sinkRecorder struct {
	mu     sync.Mutex
	chunks map[domain.ModelType][]stream.Chunk
	errs   []error
}

func (s *sinkRecorder) Typing(string, domain.ModelType, bool) error { return nil }

func (s *sinkRecorder) Chunk(c stream.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == nil {
		s.chunks = make(map[domain.ModelType][]stream.Chunk)
	}
	s.chunks[c.ModelType] = append(s.chunks[c.ModelType], c)
	return nil
}

func (s *sinkRecorder) Error(_ string, _ domain.ModelType, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
	return nil
}

func TestConverseRunsBothSlots(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID
	_, err := h.svc.InjectNote(context.Background(), "u1", sessionID, "hidden steering")
	require.NoError(t, err)

	sink := &sinkRecorder{}
	presenter := stream.NewPresenter(4, 0)
	require.NoError(t, h.svc.Converse(context.Background(), "u1", sessionID, "compare yourselves", nil, presenter, sink))

	for _, slot := range domain.Slots {
		chunks := sink.chunks[slot]
		require.NotEmpty(t, chunks)
		final := chunks[len(chunks)-1]
		assert.True(t, final.IsComplete)
		assert.Contains(t, final.Content, "reply from")
	}

	// Models see only the user's turn, never the steering note.
	require.Equal(t, 2, h.spy.callCount())
	for _, call := range h.spy.calls {
		require.Len(t, call.messages, 1)
		assert.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "compare yourselves"}, call.messages[0])
	}

	msgs, _ := h.store.ListMessages(context.Background(), sessionID)
	types := map[domain.ModelType]int{}
	for _, m := range msgs {
		types[m.ModelType]++
	}
	assert.Equal(t, map[domain.ModelType]int{domain.ModelTypeSystem: 1, domain.ModelTypeUser: 1, domain.ModelTypeA: 1, domain.ModelTypeB: 1}, types)

	// Second turn: each slot sees its own previous reply only.
	require.NoError(t, h.svc.Converse(context.Background(), "u1", sessionID, "again", []domain.ModelType{domain.ModelTypeB}, presenter, sink))
	last := h.spy.calls[len(h.spy.calls)-1]
	require.Len(t, last.messages, 3)
	assert.Equal(t, domain.RoleAssistant, last.messages[1].Role)
	assert.Equal(t, "reply from gpt-4o-mini", last.messages[1].Content)
}

func TestConversePausedSession(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID
	_, err := h.svc.PauseSession(context.Background(), "u1", sessionID)
	require.NoError(t, err)

	err = h.svc.Converse(context.Background(), "u1", sessionID, "hello", nil, stream.NewPresenter(4, 0), &sinkRecorder{})
	var paused *domain.SessionPausedError
	require.ErrorAs(t, err, &paused)
	msgs, _ := h.store.ListMessages(context.Background(), sessionID)
	assert.Empty(t, msgs)
}

func TestExportImportRoundTrip(t *testing.T) {
	h := newHarness(t)
	sessionID := h.start(t, "u1").Session.ID
	require.NoError(t, h.svc.Converse(context.Background(), "u1", sessionID, "hi", nil, stream.NewPresenter(8, 0), &sinkRecorder{}))
	_, err := h.svc.InjectNote(context.Background(), "u1", sessionID, "note")
	require.NoError(t, err)

	file, err := h.svc.ExportSession(context.Background(), "u1", sessionID, export.DefaultOptions())
	require.NoError(t, err)

	imported, err := h.svc.ImportSession(context.Background(), "u1", file.Data)
	require.NoError(t, err)
	assert.NotEqual(t, sessionID, imported.ID)
	assert.Equal(t, 2, imported.TurnCount)

	original, _ := h.svc.ListMessages(context.Background(), "u1", sessionID)
	copied, err := h.svc.ListMessages(context.Background(), "u1", imported.ID)
	require.NoError(t, err)
	require.Len(t, copied, len(original))
	for i := range original {
		assert.Equal(t, original[i].ID, copied[i].ID)
		assert.Equal(t, original[i].ModelType, copied[i].ModelType)
		assert.Equal(t, original[i].Content, copied[i].Content)
		assert.True(t, original[i].CreatedAt.Equal(copied[i].CreatedAt))
	}

	_, err = h.svc.ExportSession(context.Background(), "u1", sessionID, export.Options{Format: "pdf", Filter: export.FilterAll})
	var invalid *domain.InvalidRequestError
	assert.ErrorAs(t, err, &invalid)

	_, err = h.svc.ImportSession(context.Background(), "u1", []byte(`{"messages":[{"id":""}]}`))
	assert.ErrorAs(t, err, &invalid)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	h := newHarness(t)
	mine := h.start(t, "u1").Session.ID
	h.start(t, "u2")

	sessions, err := h.svc.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, mine, sessions[0].ID)

	_, err = h.svc.ListMessages(context.Background(), "u2", mine)
	var notFound *domain.SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
	_, err = h.svc.PauseSession(context.Background(), "u2", mine)
	assert.ErrorAs(t, err, &notFound)
}

func TestHistoryForTrimsToLimit(t *testing.T) {
	messages := []domain.Message{
		{ModelType: domain.ModelTypeUser, Content: "u1"},
		{ModelType: domain.ModelTypeA, Content: "a1"},
		{ModelType: domain.ModelTypeB, Content: "b1"},
		{ModelType: domain.ModelTypeSystem, Content: "note"},
		{ModelType: domain.ModelTypeUser, Content: "u2"},
	}

	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "u1"},
		{Role: domain.RoleAssistant, Content: "b1"},
		{Role: domain.RoleUser, Content: "u2"},
	}, historyFor(messages, domain.ModelTypeB, 0))

	// The window never opens on the slot's own reply.
	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "u2"},
	}, historyFor(messages, domain.ModelTypeA, 2))

	assert.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "u1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "u2"},
	}, historyFor(messages, domain.ModelTypeA, 3))
}
