// Package metrics exposes the Prometheus collectors backing the
// statistics.Client prometheus implementation.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	spiderStartsTotal      *prometheus.CounterVec
	spiderRequestsTotal    *prometheus.CounterVec
	spiderSuccessTotal     *prometheus.CounterVec
	spiderFailureTotal     *prometheus.CounterVec
	agentSuccessTotal      *prometheus.CounterVec
	agentFailureTotal      *prometheus.CounterVec
	agentLatencySeconds    *prometheus.HistogramVec
	spiderExitsTotal       *prometheus.CounterVec
	inFlightCount          *prometheus.GaugeVec
	pendingTotal           *prometheus.GaugeVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors. Safe to call
// multiple times.
func Init() {
	once.Do(func() {
		spiderStartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_starts_total",
				Help: "Number of times a spider has started, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		spiderRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_requests_total",
				Help: "Total requests added to a spider's scheduler total, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		spiderSuccessTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_success_total",
				Help: "Successfully completed responses, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		spiderFailureTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_failure_total",
				Help: "Admission-level failures, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		agentSuccessTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_agent_success_total",
				Help: "Agent responses with status 200, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		agentFailureTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_agent_failure_total",
				Help: "Agent responses with a non-200 status, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		agentLatencySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "spidercore_agent_latency_seconds",
				Help:    "Agent-reported elapsed time per response, labeled by spider id and outcome.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"spider_id", "outcome"},
		)
		spiderExitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spidercore_exits_total",
				Help: "Number of times a spider has completed its stop sequence, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		inFlightCount = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spidercore_in_flight",
				Help: "Current in-flight request count at the last Print snapshot, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
		pendingTotal = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spidercore_pending",
				Help: "Current scheduler pending count at the last Print snapshot, labeled by spider id.",
			},
			[]string{"spider_id"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStart increments the start counter for id.
func ObserveStart(id string) {
	spiderStartsTotal.WithLabelValues(id).Inc()
}

// ObserveTotal adds delta to the requests-total counter for id.
func ObserveTotal(id string, delta int) {
	if delta <= 0 {
		return
	}
	spiderRequestsTotal.WithLabelValues(id).Add(float64(delta))
}

// ObserveSuccess increments the success counter for id.
func ObserveSuccess(id string) {
	spiderSuccessTotal.WithLabelValues(id).Inc()
}

// ObserveFailure increments the failure counter for id.
func ObserveFailure(id string) {
	spiderFailureTotal.WithLabelValues(id).Inc()
}

// ObserveAgentSuccess increments the agent-success counter and records
// elapsedMs for id.
func ObserveAgentSuccess(id string, elapsedMs int64) {
	agentSuccessTotal.WithLabelValues(id).Inc()
	agentLatencySeconds.WithLabelValues(id, "success").Observe(float64(elapsedMs) / 1000)
}

// ObserveAgentFailure increments the agent-failure counter and records
// elapsedMs for id.
func ObserveAgentFailure(id string, elapsedMs int64) {
	agentFailureTotal.WithLabelValues(id).Inc()
	agentLatencySeconds.WithLabelValues(id, "failure").Observe(float64(elapsedMs) / 1000)
}

// ObserveExit increments the exit counter for id.
func ObserveExit(id string) {
	spiderExitsTotal.WithLabelValues(id).Inc()
}

// ObserveSnapshot records the point-in-time in-flight/pending gauges for id.
func ObserveSnapshot(id string, inFlight, pending int) {
	inFlightCount.WithLabelValues(id).Set(float64(inFlight))
	pendingTotal.WithLabelValues(id).Set(float64(pending))
}
