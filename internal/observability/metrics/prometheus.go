// Package metrics provides Prometheus metrics for the clinic service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	LoginAttempts          *prometheus.CounterVec
	PrescriptionsSubmitted prometheus.Counter
	SubmissionFailures     *prometheus.CounterVec
	Shares                 *prometheus.CounterVec
	ReadFallbacks          *prometheus.CounterVec
	BackendDuration        *prometheus.HistogramVec
	ActiveDrafts           prometheus.Gauge
	OutboxPublished        prometheus.Counter
	OutboxFailed           prometheus.Counter
	OutboxPending          prometheus.Gauge
	CircuitBreakerState    *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		PrescriptionsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_prescriptions_submitted_total",
			Help: "Prescriptions persisted by the backend",
		}),
		SubmissionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_prescription_submission_failures_total",
			Help: "Rejected or failed prescription submissions by reason",
		}, []string{"reason"}),
		Shares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_prescription_shares_total",
			Help: "Share dispatches by method and outcome",
		}, []string{"method", "outcome"}),
		ReadFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clinic_read_fallbacks_total",
			Help: "Backend reads served from the local fallback dataset",
		}, []string{"resource"}),
		BackendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clinic_backend_request_duration_seconds",
			Help:    "Backend REST call duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "status"}),
		ActiveDrafts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clinic_prescription_drafts_active",
			Help: "Prescription drafts currently being authored",
		}),
		OutboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_outbox_published_total",
			Help: "Activity events published from the outbox",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clinic_outbox_failed_total",
			Help: "Activity event publish failures",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clinic_outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clinic_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.PrescriptionsSubmitted,
		m.SubmissionFailures,
		m.Shares,
		m.ReadFallbacks,
		m.BackendDuration,
		m.ActiveDrafts,
		m.OutboxPublished,
		m.OutboxFailed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// LoginAttempt counts a login by outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// Submitted counts a persisted prescription.
func (m *Metrics) Submitted() {
	if m == nil {
		return
	}
	m.PrescriptionsSubmitted.Inc()
}

// SubmissionFailed counts a submission that did not persist.
func (m *Metrics) SubmissionFailed(reason string) {
	if m == nil {
		return
	}
	m.SubmissionFailures.WithLabelValues(reason).Inc()
}

// Shared counts a share dispatch.
func (m *Metrics) Shared(method string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Shares.WithLabelValues(method, outcome).Inc()
}

// ReadFallback counts a read served from local data.
func (m *Metrics) ReadFallback(resource string) {
	if m == nil {
		return
	}
	m.ReadFallbacks.WithLabelValues(resource).Inc()
}

// ObserveBackend records the duration of one backend call.
func (m *Metrics) ObserveBackend(method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.BackendDuration.WithLabelValues(method, status).Observe(d.Seconds())
}

// SetActiveDrafts sets the live draft gauge.
func (m *Metrics) SetActiveDrafts(n int) {
	if m == nil {
		return
	}
	m.ActiveDrafts.Set(float64(n))
}

// OutboxResult counts one relay publish attempt.
func (m *Metrics) OutboxResult(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.OutboxPublished.Inc()
		return
	}
	m.OutboxFailed.Inc()
}

// SetOutboxPending sets the pending outbox gauge.
func (m *Metrics) SetOutboxPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

// SetBreakerState records a circuit breaker state transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
