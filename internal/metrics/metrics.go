// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records claim races, terminal outcomes, retries and publish latency.
type Collector struct {
	claims         *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	retries        prometheus.Counter
	enqueued       prometheus.Counter
	publishLatency prometheus.Histogram
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postqueue_claims_total",
			Help: "Claim attempts on queue entries by result.",
		}, []string{"result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "postqueue_outcomes_total",
			Help: "Queue entries reaching a terminal status.",
		}, []string{"status"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postqueue_retries_scheduled_total",
			Help: "Failed attempts rescheduled for retry.",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "postqueue_enqueued_total",
			Help: "Queue entries created.",
		}),
		publishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "postqueue_publish_duration_seconds",
			Help:    "Duration of automated publish calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
	}

	reg.MustRegister(c.claims, c.outcomes, c.retries, c.enqueued, c.publishLatency)
	return c
}

func (c *Collector) RecordClaim(won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	c.claims.WithLabelValues(result).Inc()
}

func (c *Collector) RecordOutcome(status string) {
	c.outcomes.WithLabelValues(status).Inc()
}

func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

func (c *Collector) RecordEnqueued() {
	c.enqueued.Inc()
}

func (c *Collector) RecordPublishLatency(d time.Duration) {
	c.publishLatency.Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
