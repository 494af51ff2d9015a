// Package metrics provides Prometheus metrics for the populate pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	PatientsCreated      prometheus.Counter
	PatientsFailed       prometheus.Counter
	ObservationsUploaded prometheus.Counter
	RecordsSkipped       prometheus.Counter
	BundlePostDuration   prometheus.Histogram
	AuditEventsPublished prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all metrics
func New() *Metrics {
	m := &Metrics{
		PatientsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patients_created_total",
			Help: "Total patients created on the destination server",
		}),
		PatientsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patients_failed_total",
			Help: "Total patients whose upload failed",
		}),
		ObservationsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "observations_uploaded_total",
			Help: "Total observations accepted by the destination server",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_skipped_total",
			Help: "Total records skipped during mapping",
		}),
		BundlePostDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bundle_post_duration_seconds",
			Help:    "Transaction bundle POST duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		AuditEventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_events_published_total",
			Help: "Total audit events published",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.PatientsCreated,
		m.PatientsFailed,
		m.ObservationsUploaded,
		m.RecordsSkipped,
		m.BundlePostDuration,
		m.AuditEventsPublished,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
