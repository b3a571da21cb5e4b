// Package metrics exposes Prometheus counters and histograms for the
// reconciliation pipeline (§6 operational visibility).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects operational metrics for one agent process.
type Recorder struct {
	ticketsTotal       *prometheus.CounterVec
	approvalVerdicts   *prometheus.CounterVec
	backendCreateTotal *prometheus.CounterVec
	backendCreateSecs  *prometheus.HistogramVec
	vaultLookupTotal   *prometheus.CounterVec
}

// NewRecorder registers the agent's metrics against the default registry.
func NewRecorder() *Recorder {
	return &Recorder{
		ticketsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tickets_processed_total",
				Help: "Total number of ticket-processing passes, by result status",
			},
			[]string{"status"},
		),
		approvalVerdicts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "approval_verdicts_total",
				Help: "Total number of approval-marker evaluations, by verdict",
			},
			[]string{"verdict"},
		),
		backendCreateTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_create_total",
				Help: "Total number of backend user/team creation attempts, by outcome",
			},
			[]string{"outcome"},
		),
		backendCreateSecs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_create_duration_seconds",
				Help:    "Duration of a full backend reconciliation pass",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		vaultLookupTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vault_lookup_total",
				Help: "Total number of credential vault lookups, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveTicket records one ticket-processing pass outcome.
func (r *Recorder) ObserveTicket(status string) {
	r.ticketsTotal.WithLabelValues(status).Inc()
}

// ObserveApprovalVerdict records one approval-marker evaluation.
func (r *Recorder) ObserveApprovalVerdict(verdict string) {
	r.approvalVerdicts.WithLabelValues(verdict).Inc()
}

// ObserveBackendCreate records the outcome and duration of a backend
// reconciliation pass ("success", "partial", or "failed").
func (r *Recorder) ObserveBackendCreate(outcome string, duration time.Duration) {
	r.backendCreateTotal.WithLabelValues(outcome).Inc()
	r.backendCreateSecs.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveVaultLookup records one vault credential lookup outcome ("found",
// "not_found", or "unavailable").
func (r *Recorder) ObserveVaultLookup(outcome string) {
	r.vaultLookupTotal.WithLabelValues(outcome).Inc()
}

// Handler returns the standard Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
