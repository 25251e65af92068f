package claim

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the controller. A nil *Metrics records nothing.
type Metrics struct {
	refreshTotal    *prometheus.CounterVec
	claimTotal      *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	staleTotal      *prometheus.CounterVec
	claimedSupply   prometheus.Gauge
	totalSupply     prometheus.Gauge
	claimDuration   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	refresh := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_refresh_total",
		Help: "Completed drop refreshes by result",
	}, []string{"result"})

	claims := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_claim_total",
		Help: "Settled claim writes by result",
	}, []string{"result"})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_claim_rejections_total",
		Help: "Claim requests refused before reaching the ledger",
	}, []string{"reason"})

	stale := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "drop_stale_results_total",
		Help: "Gateway results discarded because a newer operation superseded them",
	}, []string{"kind"})

	claimed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drop_claimed_supply",
		Help: "Claimed supply from the latest accepted snapshot",
	})

	total := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "drop_total_supply",
		Help: "Total supply from the latest accepted snapshot",
	})

	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "drop_claim_duration_seconds",
		Help:    "Time from claim submission to settlement",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	})

	reg.MustRegister(refresh, claims, rejections, stale, claimed, total, duration)

	return &Metrics{
		refreshTotal:    refresh,
		claimTotal:      claims,
		rejectionsTotal: rejections,
		staleTotal:      stale,
		claimedSupply:   claimed,
		totalSupply:     total,
		claimDuration:   duration,
	}
}

func (m *Metrics) incRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) incClaim(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.claimTotal.WithLabelValues(result).Inc()
	m.claimDuration.Observe(took.Seconds())
}

func (m *Metrics) incRejection(reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) incStale(kind string) {
	if m == nil {
		return
	}
	m.staleTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) setSupply(claimed, total uint64) {
	if m == nil {
		return
	}
	m.claimedSupply.Set(float64(claimed))
	m.totalSupply.Set(float64(total))
}
