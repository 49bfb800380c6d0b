package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	stageDurationSeconds  *prometheus.HistogramVec
	submissionsTotal      *prometheus.CounterVec
	evaluationAttempts    *prometheus.CounterVec
	revisionJobsProcessed *prometheus.CounterVec
	sweepEnqueuedTotal    prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors used by the review API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_http_requests_total",
			Help: "Total number of review API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_http_latency_seconds",
			Help:    "Latency distribution for review API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_http_errors_total",
			Help: "Total number of error responses returned by review endpoints.",
		}, []string{"method", "route", "status"})

		stageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_stage_duration_seconds",
			Help:    "Duration of pipeline stages by outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_submissions_total",
			Help: "Pipeline runs by flow and outcome.",
		}, []string{"flow", "outcome"})

		evaluationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_evaluation_attempts_total",
			Help: "AI evaluation attempts by provider and outcome.",
		}, []string{"provider", "outcome"})

		revisionJobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_revision_jobs_processed_total",
			Help: "Revision jobs handled by the worker pool.",
		}, []string{"source", "outcome"})

		sweepEnqueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_sweep_enqueued_total",
			Help: "Failed submissions enqueued for an automatic revision.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			stageDurationSeconds,
			submissionsTotal,
			evaluationAttempts,
			revisionJobsProcessed,
			sweepEnqueuedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func StageDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return stageDurationSeconds
}

func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

func EvaluationAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationAttempts
}

func RevisionJobs() *prometheus.CounterVec {
	RegisterMetrics()
	return revisionJobsProcessed
}

func SweepEnqueued() prometheus.Counter {
	RegisterMetrics()
	return sweepEnqueuedTotal
}

// Outcome maps a success flag to the metric label.
func Outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
