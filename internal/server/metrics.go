package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry     *prometheus.Registry
	intentsTotal *prometheus.CounterVec
}

// newMetricsRegistry adds the HTTP counters to the registry shared with the claim controller.
func newMetricsRegistry(r *prometheus.Registry) *metricsRegistry {
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_http_intents_total",
		Help: "User intents received over HTTP by intent and response code",
	}, []string{"intent", "code"})

	r.MustRegister(intents)

	return &metricsRegistry{
		registry:     r,
		intentsTotal: intents,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incIntent(intent, code string) {
	m.intentsTotal.WithLabelValues(intent, code).Inc()
}
