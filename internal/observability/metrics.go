package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the loan service. Counters and
// histograms are registered via promauto against the default registry.
type Metrics struct {
	// StatusTransitions counts loan status transitions, labeled by the new status.
	StatusTransitions *prometheus.CounterVec

	// LoansByStatus gauges the current number of loans per status, refreshed
	// periodically from the store.
	LoansByStatus *prometheus.GaugeVec

	// OutboxBatchSize observes the number of outbox entries processed per poll.
	OutboxBatchSize prometheus.Histogram

	// OutboxPublished counts outbox entries successfully published and flagged sent.
	OutboxPublished prometheus.Counter

	// OutboxPublishFailures counts failed publish attempts; failed entries stay
	// unsent and are retried on subsequent ticks.
	OutboxPublishFailures prometheus.Counter

	// HTTPRequestsTotal counts HTTP requests, labeled by method, route and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes HTTP request duration in seconds, labeled by method and route.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all loan service metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_status_transitions_total",
			Help: "Total number of loan status transitions by resulting status.",
		}, []string{"status"}),

		LoansByStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loans_by_status",
			Help: "Current number of loans by status.",
		}, []string{"status"}),

		OutboxBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "loan_outbox_batch_size",
			Help:    "Number of outbox events processed per poll.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),

		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_outbox_published_total",
			Help: "Total outbox events published and marked sent.",
		}),

		OutboxPublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "loan_outbox_publish_failures_total",
			Help: "Total failures when publishing outbox events.",
		}),

		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_http_requests_total",
			Help: "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loan_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}
