// Package stream re-delivers a complete model reply as an incremental
// typing/chunk/complete sequence.
package stream

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of one exchange.
type State int

const (
	StateIdle State = iota
	StateTyping
	StateStreaming
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTyping:
		return "typing"
	case StateStreaming:
		return "streaming"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// next lists the forward transitions. Typing may fall back to Idle when the
// relay fails before any content exists.
var next = map[State][]State{
	StateIdle:      {StateTyping},
	StateTyping:    {StateStreaming, StateIdle},
	StateStreaming: {StateComplete},
}

// IllegalTransitionError reports a transition the lifecycle does not allow.
type IllegalTransitionError struct {
	From, To State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal stream transition %s -> %s", e.From, e.To)
}

// Exchange tracks the state of one in-flight exchange.
type Exchange struct {
	mu    sync.Mutex
	state State
}

// NewExchange returns an exchange in the Idle state.
func NewExchange() *Exchange {
	return &Exchange{state: StateIdle}
}

// State returns the current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Transition moves the exchange to `to`.
func (e *Exchange) Transition(to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, allowed := range next[e.state] {
		if allowed == to {
			e.state = to
			return nil
		}
	}
	return &IllegalTransitionError{From: e.state, To: to}
}
