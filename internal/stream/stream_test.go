package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dualchat/internal/domain"
)

type recorded struct {
	kind  string
	chunk Chunk
	on    bool
	err   error
}

type recordingSink struct {
	mu     sync.Mutex
	events []recorded
	fail   error
}

func (s *recordingSink) Typing(sessionID string, slot domain.ModelType, isTyping bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{kind: "typing", on: isTyping})
	return nil
}

func (s *recordingSink) Chunk(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.events = append(s.events, recorded{kind: "chunk", chunk: c})
	return nil
}

func (s *recordingSink) Error(sessionID string, slot domain.ModelType, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recorded{kind: "error", err: err})
	return nil
}

func TestExchangeTransitions(t *testing.T) {
	ex := NewExchange()
	assert.Equal(t, StateIdle, ex.State())

	var illegal *IllegalTransitionError
	require.ErrorAs(t, ex.Transition(StateStreaming), &illegal)
	assert.Equal(t, StateIdle, illegal.From)

	require.NoError(t, ex.Transition(StateTyping))
	require.NoError(t, ex.Transition(StateStreaming))
	assert.Error(t, ex.Transition(StateTyping))
	require.NoError(t, ex.Transition(StateComplete))
	assert.Error(t, ex.Transition(StateIdle))
	assert.Equal(t, "complete", ex.State().String())
}

func TestFragmentsRuneSafeAndFinite(t *testing.T) {
	text := "héllo wörld, 你好世界!"
	f := NewFragments(text, 4)
	assert.Equal(t, 5, f.Remaining())

	var parts []string
	for {
		p, ok := f.Next()
		if !ok {
			break
		}
		assert.LessOrEqual(t, len([]rune(p)), 4)
		parts = append(parts, p)
	}
	assert.Equal(t, text, strings.Join(parts, ""))

	// Exhausted sequences stay exhausted.
	_, ok := f.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, f.Remaining())
}

func TestFragmentsEmpty(t *testing.T) {
	_, ok := NewFragments("", 10).Next()
	assert.False(t, ok)
}

func TestPresentEmitsLifecycle(t *testing.T) {
	sink := &recordingSink{}
	p := NewPresenter(5, time.Millisecond)

	res, err := p.Present(context.Background(), sink, "s1", domain.ModelTypeA, func(ctx context.Context) (*domain.RelayResult, error) {
		return &domain.RelayResult{Content: "hello world!", ModelUsed: "gpt-4o", MessageID: "m1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world!", res.Content)

	kinds := make([]string, 0, len(sink.events))
	var streamed strings.Builder
	for _, e := range sink.events {
		kinds = append(kinds, e.kind)
		if e.kind == "chunk" && !e.chunk.IsComplete {
			streamed.WriteString(e.chunk.Chunk)
		}
	}
	assert.Equal(t, []string{"typing", "chunk", "chunk", "chunk", "chunk", "typing"}, kinds)
	assert.True(t, sink.events[0].on)
	assert.False(t, sink.events[5].on)
	assert.Equal(t, "hello world!", streamed.String())

	final := sink.events[4].chunk
	assert.True(t, final.IsComplete)
	assert.Equal(t, "hello world!", final.Content)
	assert.Equal(t, "gpt-4o", final.Model)
	assert.Equal(t, "m1", final.MessageID)
}

func TestPresentReportsProducerError(t *testing.T) {
	sink := &recordingSink{}
	p := NewPresenter(5, 0)
	boom := &domain.ProviderError{Vendor: "OpenAI", Message: "quota exceeded"}

	_, err := p.Present(context.Background(), sink, "s1", domain.ModelTypeB, func(ctx context.Context) (*domain.RelayResult, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	require.Len(t, sink.events, 3)
	assert.Equal(t, "typing", sink.events[0].kind)
	assert.Equal(t, "typing", sink.events[1].kind)
	assert.False(t, sink.events[1].on)
	assert.Equal(t, "error", sink.events[2].kind)
	assert.ErrorIs(t, sink.events[2].err, boom)
}

func TestPresentStopsOnSinkFailure(t *testing.T) {
	sink := &recordingSink{fail: errors.New("connection closed")}
	p := NewPresenter(2, 0)

	_, err := p.Present(context.Background(), sink, "s1", domain.ModelTypeA, func(ctx context.Context) (*domain.RelayResult, error) {
		return &domain.RelayResult{Content: "abcdef"}, nil
	})
	assert.ErrorContains(t, err, "connection closed")
}

func TestPresentStopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	p := NewPresenter(1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Present(ctx, sink, "s1", domain.ModelTypeA, func(ctx context.Context) (*domain.RelayResult, error) {
		cancel()
		return &domain.RelayResult{Content: "abc"}, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
