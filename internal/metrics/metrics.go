// Package metrics provides Prometheus metrics for the pipelines and the
// HTTP surface.
package metrics

import (
	"strconv"

	"flaneur/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks pipeline runs by outcome
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaneur",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by outcome",
		},
		[]string{"job", "status"},
	)

	// RunDuration tracks pipeline run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flaneur",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 200, 240, 280, 300},
		},
		[]string{"job"},
	)

	// ItemsTotal tracks work items by phase and result
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaneur",
			Subsystem: "pipeline",
			Name:      "items_total",
			Help:      "Work items attempted, by phase and result",
		},
		[]string{"job", "phase", "result"},
	)

	// PhaseStops tracks why phases stopped admitting work
	PhaseStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaneur",
			Subsystem: "pipeline",
			Name:      "phase_stops_total",
			Help:      "Phase terminations by stop reason",
		},
		[]string{"job", "phase", "reason"},
	)

	// HTTPRequestsTotal tracks inbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flaneur",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests",
		},
		[]string{"route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "flaneur",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of inbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 300},
		},
		[]string{"route"},
	)
)

// Recorder reports finished runs. It satisfies pipeline.RunRecorder.
type Recorder struct{}

// ObserveRun records the outcome, duration and per-phase counts of s.
func (Recorder) ObserveRun(s *pipeline.Summary) {
	status := "success"
	switch {
	case !s.Success():
		status = "failure"
	case s.QuotaExhausted():
		status = "quota_exhausted"
	case s.SkippedTimeBudget():
		status = "budget_exhausted"
	}
	RunsTotal.WithLabelValues(s.Job, status).Inc()
	RunDuration.WithLabelValues(s.Job).Observe(s.Elapsed().Seconds())

	for _, p := range s.Phases() {
		ItemsTotal.WithLabelValues(s.Job, p.Name, "succeeded").Add(float64(p.Succeeded))
		ItemsTotal.WithLabelValues(s.Job, p.Name, "failed").Add(float64(p.Failed))
		ItemsTotal.WithLabelValues(s.Job, p.Name, "remaining").Add(float64(p.Remaining))
		PhaseStops.WithLabelValues(s.Job, p.Name, string(p.Stop)).Inc()
	}
}

// RecordHTTPRequest records an inbound HTTP request metric
func RecordHTTPRequest(route string, statusCode int, durationSeconds float64) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(route, statusClass(statusCode)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

func statusClass(code int) string {
	if code == 0 {
		code = 200
	}
	return strconv.Itoa(code/100) + "xx"
}
