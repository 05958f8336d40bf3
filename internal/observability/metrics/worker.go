package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers the corpus watcher: version polls against postgres
// and corpus-updated publications.
type WorkerMetrics struct {
	registry *prometheus.Registry

	pollTotal    *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec
	publishTotal *prometheus.CounterVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	pollTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsr",
			Subsystem: "worker",
			Name:      "corpus_poll_total",
			Help:      "Total corpus version polls by outcome.",
		},
		[]string{"service", "outcome"},
	)
	pollDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bsr",
			Subsystem: "worker",
			Name:      "corpus_poll_duration_seconds",
			Help:      "Corpus version poll duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	publishTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bsr",
			Subsystem: "worker",
			Name:      "corpus_updates_published_total",
			Help:      "Total corpus-updated events published.",
		},
		[]string{"service", "outcome"},
	)

	registry.MustRegister(pollTotal, pollDuration, publishTotal)

	return &WorkerMetrics{
		registry:     registry,
		pollTotal:    pollTotal,
		pollDuration: pollDuration,
		publishTotal: publishTotal,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) ObservePoll(service string, duration time.Duration, changed bool, err error) {
	outcome := "unchanged"
	switch {
	case err != nil:
		outcome = "error"
	case changed:
		outcome = "changed"
	}
	m.pollTotal.WithLabelValues(service, outcome).Inc()
	m.pollDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObservePublish(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.publishTotal.WithLabelValues(service, outcome).Inc()
}
