package provider

import (
	"log/slog"
	"net/http"
	"sort"
)

const (
	// ModeMock selects mock adapters for every provider.
	ModeMock = "MOCK"
)

// Provider ids, matching the registry catalog.
const (
	OpenAI     = "openai"
	Anthropic  = "anthropic"
	XAI        = "xai"
	Google     = "google"
	DeepSeek   = "deepseek"
	Qwen       = "qwen"
	OpenRouter = "openrouter"
)

// Set maps provider ids to adapters. Adding a vendor means registering a new
// adapter here; the dispatcher never changes.
type Set struct {
	adapters map[string]Adapter
}

// NewSet returns an empty adapter set.
func NewSet() *Set {
	return &Set{adapters: make(map[string]Adapter)}
}

// Default registers the real adapter of every supported vendor.
func Default(client *http.Client) *Set {
	s := NewSet()
	s.Register(OpenAI, NewOpenAI(client))
	s.Register(Anthropic, NewAnthropic(client))
	s.Register(XAI, NewXAI(client))
	s.Register(Google, NewGoogle(client))
	s.Register(DeepSeek, NewDeepSeek(client))
	s.Register(Qwen, NewQwen(client))
	s.Register(OpenRouter, NewOpenRouter(client))
	return s
}

// Mock registers a mock adapter under every supported vendor id.
func Mock() *Set {
	s := NewSet()
	for id, a := range Default(nil).adapters {
		s.Register(id, NewMockAdapter(a.Name()))
	}
	return s
}

// ForMode picks mock adapters when mode is MOCK and real ones otherwise.
func ForMode(mode string, client *http.Client) *Set {
	if mode == ModeMock {
		slog.Info("GOGO_MODE=MOCK detected, using mock provider adapters")
		return Mock()
	}
	return Default(client)
}

// Register adds or replaces the adapter for id. Call it before the set is
// shared with the dispatcher.
func (s *Set) Register(id string, a Adapter) {
	s.adapters[id] = a
}

// Get resolves the adapter for a provider id.
func (s *Set) Get(id string) (Adapter, bool) {
	a, ok := s.adapters[id]
	return a, ok
}

// IDs lists registered provider ids in sorted order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.adapters))
	for id := range s.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
