package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/xiaot623/dualchat/internal/domain"
)

// Chunk is one message_chunk event.
type Chunk struct {
	SessionID  string           `json:"session_id"`
	ModelType  domain.ModelType `json:"model_type"`
	Chunk      string           `json:"chunk"`
	IsComplete bool             `json:"is_complete"`
	// Set on the terminal chunk only.
	Content   string `json:"content,omitempty"`
	Model     string `json:"model,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// Sink receives the lifecycle events of an exchange.
type Sink interface {
	Typing(sessionID string, slot domain.ModelType, isTyping bool) error
	Chunk(c Chunk) error
	Error(sessionID string, slot domain.ModelType, err error) error
}

// Producer obtains the complete reply, typically by running a relay.
type Producer func(ctx context.Context) (*domain.RelayResult, error)

// Presenter paces replies into chunks.
type Presenter struct {
	chunkSize int
	interval  time.Duration
}

// NewPresenter creates a presenter emitting chunkSize runes every interval.
func NewPresenter(chunkSize int, interval time.Duration) *Presenter {
	return &Presenter{chunkSize: chunkSize, interval: interval}
}

// Present runs one exchange: typing, then the reply in chunks, then the
// terminal complete chunk. A producer error is reported to the sink and
// returned. The fragments already computed are always emitted in full unless
// ctx is cancelled.
func (p *Presenter) Present(ctx context.Context, sink Sink, sessionID string, slot domain.ModelType, produce Producer) (*domain.RelayResult, error) {
	ex := NewExchange()
	if err := ex.Transition(StateTyping); err != nil {
		return nil, err
	}
	if err := sink.Typing(sessionID, slot, true); err != nil {
		return nil, fmt.Errorf("sink typing: %w", err)
	}

	result, err := produce(ctx)
	if err != nil {
		_ = ex.Transition(StateIdle)
		_ = sink.Typing(sessionID, slot, false)
		if sinkErr := sink.Error(sessionID, slot, err); sinkErr != nil {
			return nil, fmt.Errorf("sink error: %w", sinkErr)
		}
		return nil, err
	}

	if err := ex.Transition(StateStreaming); err != nil {
		return result, err
	}

	frags := NewFragments(result.Content, p.chunkSize)
	var ticker *time.Ticker
	if p.interval > 0 {
		ticker = time.NewTicker(p.interval)
		defer ticker.Stop()
	}

	first := true
	for {
		piece, ok := frags.Next()
		if !ok {
			break
		}
		if !first && ticker != nil {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
		first = false
		if err := sink.Chunk(Chunk{SessionID: sessionID, ModelType: slot, Chunk: piece}); err != nil {
			return result, fmt.Errorf("sink chunk: %w", err)
		}
	}

	if err := ex.Transition(StateComplete); err != nil {
		return result, err
	}
	if err := sink.Chunk(Chunk{
		SessionID:  sessionID,
		ModelType:  slot,
		IsComplete: true,
		Content:    result.Content,
		Model:      result.ModelUsed,
		MessageID:  result.MessageID,
	}); err != nil {
		return result, fmt.Errorf("sink complete: %w", err)
	}
	if err := sink.Typing(sessionID, slot, false); err != nil {
		return result, fmt.Errorf("sink typing: %w", err)
	}
	return result, nil
}
