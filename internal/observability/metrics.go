package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upb/askllm/internal/router"
)

const namespace = "askllm"

// Outcome label values for askllm_forward_total.
const (
	OutcomeSuccess = "success"
)

// Metrics holds the forward collectors on a private registry, so several
// instances (one per test) never collide.
type Metrics struct {
	registry *prometheus.Registry

	forwardTotal    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	backendAttempts *prometheus.CounterVec
}

// NewMetrics registers the collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		forwardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forward_total",
				Help:      "Forwarded requests by alias and outcome",
			},
			[]string{"alias", "outcome"},
		),
		forwardDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "forward_duration_seconds",
				Help:      "Time spent forwarding a request, retries included",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"alias"},
		),
		backendAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_attempts_total",
				Help:      "Backend calls issued, empty-response retries included",
			},
			[]string{"alias"},
		),
	}
	reg.MustRegister(
		m.forwardTotal,
		m.forwardDuration,
		m.backendAttempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveForward records one Forward outcome. attempts is the number of
// backend calls made; zero for requests that never reached a backend.
func (m *Metrics) ObserveForward(alias string, attempts int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.forwardTotal.WithLabelValues(alias, Outcome(err)).Inc()
	m.forwardDuration.WithLabelValues(alias).Observe(duration.Seconds())
	if attempts > 0 {
		m.backendAttempts.WithLabelValues(alias).Add(float64(attempts))
	}
}

// RegisterAuditQueue exposes the number of audit entries waiting for a
// worker as askllm_audit_pending_entries.
func (m *Metrics) RegisterAuditQueue(pending func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_pending_entries",
			Help:      "Audit entries queued but not yet written",
		},
		func() float64 { return float64(pending()) },
	))
}

// Outcome maps a Forward error to its metric label: success, the error kind,
// or backend_<reason> for backend failures.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	kind := router.KindOf(err)
	if kind == router.KindBackend {
		if reason := router.ReasonOf(err); reason != "" {
			return string(kind) + "_" + reason
		}
	}
	if kind == "" {
		return "internal"
	}
	return string(kind)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
