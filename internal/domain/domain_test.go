package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode(t *testing.T) {
	providerErr := &ProviderError{Vendor: "OpenAI", Message: "Incorrect API key provided"}
	cases := []struct {
		err  error
		want string
	}{
		{&UnauthenticatedError{}, CodeUnauthenticated},
		{&NoActiveConfigurationError{OwnerID: "u1"}, CodeNoActiveConfiguration},
		{&UnsupportedProviderError{Provider: "acme"}, CodeUnsupportedProvider},
		{&SessionPausedError{SessionID: "s1"}, CodeSessionPaused},
		{&SessionNotFoundError{SessionID: "s1"}, CodeSessionNotFound},
		{&InvalidRequestError{Reason: "messages is required"}, CodeInvalidRequest},
		{&PolicyDeniedError{}, CodePolicyDenied},
		{providerErr, CodeProviderError},
		{&RelayError{SessionID: "s1", ModelType: ModelTypeA, Err: providerErr}, CodeProviderError},
		{fmt.Errorf("relay: %w", &PersistenceError{Op: "create message", Err: errors.New("disk full")}), CodePersistenceError},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ErrorCode(tc.err), tc.err.Error())
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Vendor: "Anthropic", Message: "invalid x-api-key"}
	assert.Equal(t, "Anthropic API error: invalid x-api-key", err.Error())

	err = &ProviderError{Vendor: "Qwen"}
	assert.Equal(t, "Qwen API error: Unknown error", err.Error())
}

func TestRelayErrorKeepsProviderMessage(t *testing.T) {
	inner := &ProviderError{Vendor: "OpenAI", Message: "Rate limit reached", StatusCode: 429}
	err := &RelayError{SessionID: "s1", ModelType: ModelTypeB, Model: "gpt-4o", Err: inner}

	assert.Equal(t, inner.Error(), err.Error())

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 429, perr.StatusCode)
}

func TestUnsupportedProviderMessage(t *testing.T) {
	assert.Equal(t, "Unsupported provider: acme", (&UnsupportedProviderError{Provider: "acme"}).Error())
	assert.Contains(t, (&UnsupportedProviderError{Provider: "openai", Model: "gpt-9"}).Error(), "gpt-9")
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "", MaskAPIKey(""))
	assert.Equal(t, "****", MaskAPIKey("short"))
	assert.Equal(t, "sk-…cdef", MaskAPIKey("sk-0123456789abcdef"))

	masked := MaskAPIKey("ключ-0123456789-ключ")
	assert.Equal(t, "клю…ключ", masked)
	assert.True(t, utf8.ValidString(masked))
	assert.Equal(t, "****", MaskAPIKey("ключключ"))
}

func TestConfigurationJSONMasksKey(t *testing.T) {
	cfg := Configuration{ID: "c1", OwnerID: "u1", Provider: "openai", APIKey: "sk-0123456789abcdef", ModelA: "gpt-4o", ModelB: "gpt-4o-mini", IsActive: true}

	for _, v := range []any{cfg, &cfg} {
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "0123456789")

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "sk-…cdef", decoded["api_key"])
		assert.Equal(t, "gpt-4o", decoded["model_a"])
		assert.Equal(t, true, decoded["is_active"])
	}
}

func TestModelFor(t *testing.T) {
	cfg := &Configuration{ModelA: "a-model", ModelB: "b-model"}
	assert.Equal(t, "a-model", cfg.ModelFor(ModelTypeA))
	assert.Equal(t, "b-model", cfg.ModelFor(ModelTypeB))
}

func TestModelTypeValid(t *testing.T) {
	assert.True(t, ModelTypeA.IsSlot())
	assert.True(t, ModelTypeB.IsSlot())
	assert.False(t, ModelTypeUser.IsSlot())
	assert.True(t, ModelTypeSystem.Valid())
	assert.False(t, ModelType("C").Valid())
}
