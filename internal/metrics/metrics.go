// Package metrics exposes relay accounting as Prometheus collectors.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/dualchat/internal/domain"
	"github.com/xiaot623/dualchat/internal/service"
)

const namespace = "dualchat"

// Relay status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector records finished relays. It implements service.RelayObserver.
type Collector struct {
	registry *prometheus.Registry
	relays   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

var _ service.RelayObserver = (*Collector)(nil)

// New creates a collector on its own registry, with the Go and process
// collectors registered alongside.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		relays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Relays that reached a provider, by outcome.",
		}, []string{"provider", "model_type", "status", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_latency_seconds",
			Help:      "Provider round-trip latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}, []string{"provider", "model"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by vendors.",
		}, []string{"provider", "model", "kind"}),
	}
	c.registry.MustRegister(
		c.relays,
		c.latency,
		c.tokens,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RelayFinished records one relay.
func (c *Collector) RelayFinished(rec service.RelayRecord) {
	status, code := StatusOK, ""
	if rec.Err != nil {
		status, code = StatusError, domain.ErrorCode(rec.Err)
	}
	c.relays.WithLabelValues(rec.Provider, strings.ToLower(string(rec.ModelType)), status, code).Inc()
	c.latency.WithLabelValues(rec.Provider, rec.Model).Observe(rec.Latency.Seconds())

	if rec.Usage == nil {
		return
	}
	for kind, n := range map[string]int{
		"prompt":     rec.Usage.PromptTokens,
		"completion": rec.Usage.CompletionTokens,
	} {
		if n > 0 {
			c.tokens.WithLabelValues(rec.Provider, rec.Model, kind).Add(float64(n))
		}
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
