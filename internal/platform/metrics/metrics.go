package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the governance core.
type Metrics struct {
	ShareLinksCreated prometheus.Counter
	ShareLinkAccesses prometheus.Counter
	ShareLinksRevoked prometheus.Counter
	TokenValidations  *prometheus.CounterVec

	ApprovalsRequested prometheus.Counter
	ApprovalsDecided   *prometheus.CounterVec
	DecisionConflicts  prometheus.Counter
	SideEffectFailures prometheus.Counter

	AuditEventsRecorded prometheus.Counter
	AuditEmitFailures   prometheus.Counter
	AuditRelayPublished prometheus.Counter
	AuditRelayFailures  prometheus.Counter

	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in main; tests use a fresh registry to
// avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ShareLinksCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_share_links_created_total",
			Help: "Total number of share links issued.",
		}),
		ShareLinkAccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_share_link_accesses_total",
			Help: "Total number of recorded anonymous share accesses.",
		}),
		ShareLinksRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_share_links_revoked_total",
			Help: "Total number of share links revoked.",
		}),
		TokenValidations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trellis_share_token_validations_total",
			Help: "Share token validations by outcome.",
		}, []string{"outcome"}),
		ApprovalsRequested: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_approvals_requested_total",
			Help: "Total number of approval requests opened.",
		}),
		ApprovalsDecided: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trellis_approvals_decided_total",
			Help: "Approvals decided by decision.",
		}, []string{"decision"}),
		DecisionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_approval_decision_conflicts_total",
			Help: "Decisions rejected because the approval was no longer pending.",
		}),
		SideEffectFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_approval_side_effect_failures_total",
			Help: "Post-decision side effects that failed after the decision committed.",
		}),
		AuditEventsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_audit_events_recorded_total",
			Help: "Audit events successfully appended to the store.",
		}),
		AuditEmitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_audit_emit_failures_total",
			Help: "Audit events dropped because the store append failed.",
		}),
		AuditRelayPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_audit_relay_published_total",
			Help: "Outbox entries published to Kafka by the relay.",
		}),
		AuditRelayFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trellis_audit_relay_failures_total",
			Help: "Outbox publish attempts that failed and will be retried.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trellis_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
