// Package domain defines the core domain models for the relay.
package domain

// ModelType identifies who authored a message: one of the two model slots,
// the user, or the system (steering notes).
type ModelType string

const (
	ModelTypeA      ModelType = "A"
	ModelTypeB      ModelType = "B"
	ModelTypeUser   ModelType = "user"
	ModelTypeSystem ModelType = "system"
)

// IsSlot reports whether t names a model slot (A or B).
func (t ModelType) IsSlot() bool {
	return t == ModelTypeA || t == ModelTypeB
}

// Valid reports whether t is a known message author.
func (t ModelType) Valid() bool {
	switch t {
	case ModelTypeA, ModelTypeB, ModelTypeUser, ModelTypeSystem:
		return true
	}
	return false
}

// Slots lists the model slots in display order.
var Slots = []ModelType{ModelTypeA, ModelTypeB}

// Chat roles understood by the unified adapter contract.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// EventType represents the type of a relay accounting event.
type EventType string

const (
	EventTypeRelayStarted   EventType = "relay_started"
	EventTypeRelayCompleted EventType = "relay_completed"
	EventTypeRelayFailed    EventType = "relay_failed"
	EventTypeNoteInjected   EventType = "note_injected"
)
