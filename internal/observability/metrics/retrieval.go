// Package metrics holds the Prometheus collectors for both services. The
// bsr namespace (bisq support retrieval) keeps them apart from other
// exporters sharing a scrape target.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bisq-support/retrieval/internal/core/domain"
)

// RetrievalMetrics implements the use-case recorder interface. All methods
// are safe for concurrent use.
type RetrievalMetrics struct {
	service         string
	retrieveTotal   *prometheus.CounterVec
	rewriteTotal    *prometheus.CounterVec
	stageCandidates *prometheus.HistogramVec
	fusedResults    *prometheus.HistogramVec
	duration        *prometheus.HistogramVec
}

func NewRetrievalMetrics(service string, registry *prometheus.Registry) *RetrievalMetrics {
	retrieveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsr",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total retrieval requests by routed protocol category.",
		},
		[]string{"service", "category"},
	)
	rewriteTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsr",
			Subsystem: "retrieval",
			Name:      "rewrites_total",
			Help:      "Total retrieval requests by whether the query was rewritten.",
		},
		[]string{"service", "rewritten"},
	)
	stageCandidates := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsr",
			Subsystem: "retrieval",
			Name:      "stage_candidates",
			Help:      "Candidates gathered per retrieval stage before fusion.",
			Buckets:   []float64{0, 1, 2, 4, 6, 9, 12, 18, 24, 36},
		},
		[]string{"service", "stage"},
	)
	fusedResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsr",
			Subsystem: "retrieval",
			Name:      "fused_results",
			Help:      "Final result count after fusion, dedup and truncation.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
		},
		[]string{"service"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsr",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(retrieveTotal, rewriteTotal, stageCandidates, fusedResults, duration)

	return &RetrievalMetrics{
		service:         service,
		retrieveTotal:   retrieveTotal,
		rewriteTotal:    rewriteTotal,
		stageCandidates: stageCandidates,
		fusedResults:    fusedResults,
		duration:        duration,
	}
}

func (m *RetrievalMetrics) ObserveStage(stage domain.RetrievalStage, candidates int) {
	m.stageCandidates.WithLabelValues(m.service, string(stage)).Observe(float64(candidates))
}

func (m *RetrievalMetrics) ObserveRetrieve(category domain.ProtocolCategory, fused int, rewritten bool, duration time.Duration) {
	m.retrieveTotal.WithLabelValues(m.service, string(category)).Inc()
	m.rewriteTotal.WithLabelValues(m.service, strconv.FormatBool(rewritten)).Inc()
	m.fusedResults.WithLabelValues(m.service).Observe(float64(fused))
	m.duration.WithLabelValues(m.service).Observe(duration.Seconds())
}
