// metrics.go - Prometheus collectors for the controller and the prover.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operation store
	OperationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privacypool_operations_created_total",
			Help: "Operations appended to the pending pool",
		},
		[]string{"source"}, // derived | imported
	)

	OperationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privacypool_operation_transitions_total",
			Help: "Pool transitions by kind and result",
		},
		[]string{"transition", "result"},
	)

	PoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "privacypool_pool_size",
			Help: "Number of operations held in each pool",
		},
		[]string{"pool"},
	)

	// Proof orchestration
	ProofRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privacypool_proof_requests_total",
			Help: "Proof requests by final outcome",
		},
		[]string{"outcome"},
	)

	ProofDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privacypool_proof_duration_seconds",
			Help:    "Time spent by the prover per stage",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	ProverDialAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "privacypool_prover_dial_attempts",
		Help:    "Dial attempts needed before the prover accepted a connection",
		Buckets: []float64{1, 2, 3, 5, 8, 10},
	})

	StagedRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privacypool_staged_requests",
		Help: "Proof requests awaiting approval (0 or 1)",
	})

	PendingResponses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "privacypool_pending_responses",
		Help: "Callers waiting on a proof result",
	})

	// Remote pool service
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privacypool_upstream_requests_total",
			Help: "Requests to the remote pool service",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "privacypool_upstream_request_duration_seconds",
			Help:    "Remote pool service latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "privacypool_http_requests_total",
			Help: "Controller API requests",
		},
		[]string{"method", "route", "status"},
	)

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "privacypool_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// RecordTransition counts a pool transition.
func RecordTransition(transition string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	OperationTransitions.WithLabelValues(transition, result).Inc()
}

// RecordProofStage observes how long one prover stage took.
func RecordProofStage(stage string, d time.Duration) {
	ProofDuration.WithLabelValues(stage).Observe(d.Seconds())
}
