package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "")
	t.Setenv("PROVIDER_TIMEOUT_MS", "")
	t.Setenv("STREAM_CHUNK_SIZE", "")

	cfg := Load()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 10, cfg.StreamChunkSize)
	assert.Equal(t, 3, cfg.PersistRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROVIDER_TIMEOUT_MS", "1500")
	t.Setenv("AUTH_TOKENS", "tok-a:alice, tok-b:bob,broken,:nobody")

	cfg := Load()
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 1500*time.Millisecond, cfg.ProviderTimeout)
	assert.Equal(t, map[string]string{"tok-a": "alice", "tok-b": "bob"}, cfg.AuthTokens)
}

func TestGetEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
}
