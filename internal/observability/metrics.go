package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	apiRequestsTotal      *prometheus.CounterVec
	apiLatencySeconds     *prometheus.HistogramVec
	apiErrorsTotal        *prometheus.CounterVec
	responsesProcessed    *prometheus.CounterVec
	responseProcessingSec prometheus.Histogram
	scoringRunsTotal      *prometheus.CounterVec
	scoringDurationSec    prometheus.Histogram
)

// RegisterMetrics initialises the Prometheus collectors for the HTTP
// surface and the async processing pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "veritas_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		responsesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_responses_processed_total",
			Help: "Recorded answers run through the transcription pipeline, by terminal status.",
		}, []string{"status"})

		responseProcessingSec = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_response_processing_seconds",
			Help:    "Wall-clock duration of one answer's processing run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		scoringRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "veritas_scoring_runs_total",
			Help: "Submission scoring runs, by terminal status.",
		}, []string{"status"})

		scoringDurationSec = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "veritas_scoring_duration_seconds",
			Help:    "Wall-clock duration of one submission scoring run.",
			Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120, 300},
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			responsesProcessed,
			responseProcessingSec,
			scoringRunsTotal,
			scoringDurationSec,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// ResponsesProcessed exposes the pipeline completion counter.
func ResponsesProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return responsesProcessed
}

// ResponseProcessingDuration exposes the per-answer processing histogram.
func ResponseProcessingDuration() prometheus.Histogram {
	RegisterMetrics()
	return responseProcessingSec
}

// ScoringRuns exposes the scoring run counter.
func ScoringRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return scoringRunsTotal
}

// ScoringDuration exposes the per-submission scoring histogram.
func ScoringDuration() prometheus.Histogram {
	RegisterMetrics()
	return scoringDurationSec
}
