package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/service"
)

func TestRelayFinishedCountsOutcomes(t *testing.T) {
	c := New()

	c.RelayFinished(service.RelayRecord{
		Provider:  "openai",
		Model:     "gpt-4o",
		ModelType: domain.ModelTypeA,
		Latency:   300 * time.Millisecond,
		Usage:     &domain.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42},
	})
	c.RelayFinished(service.RelayRecord{
		Provider:  "openai",
		Model:     "gpt-4o-mini",
		ModelType: domain.ModelTypeB,
		Latency:   time.Second,
		Err:       &domain.ProviderError{Vendor: "OpenAI", Message: "boom", StatusCode: 500},
	})
	c.RelayFinished(service.RelayRecord{
		Provider:  "openai",
		Model:     "gpt-4o",
		ModelType: domain.ModelTypeA,
		Err:       &domain.PersistenceError{Op: "persist message", Err: errors.New("locked")},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.relays.WithLabelValues("openai", "a", StatusOK, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relays.WithLabelValues("openai", "b", StatusError, domain.CodeProviderError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.relays.WithLabelValues("openai", "a", StatusError, domain.CodePersistenceError)))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.tokens.WithLabelValues("openai", "gpt-4o", "prompt")))
	assert.Equal(t, 30.0, testutil.ToFloat64(c.tokens.WithLabelValues("openai", "gpt-4o", "completion")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.latency))
}

func TestHandlerExposesCollectors(t *testing.T) {
	c := New()
	c.RelayFinished(service.RelayRecord{Provider: "qwen", Model: "qwen-max", ModelType: domain.ModelTypeA, Latency: time.Millisecond})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `dualchat_relays_total{code="",model_type="a",provider="qwen",status="ok"} 1`)
	assert.Contains(t, string(body), "dualchat_relay_latency_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
