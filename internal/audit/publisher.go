package audit

import (
	"context"
	"log/slog"

	"trellis/internal/platform/metrics"
	id "trellis/pkg/domain"
	"trellis/pkg/requestcontext"
)

// Publisher captures structured audit events on behalf of the governance
// services. Emit deliberately returns nothing: an unavailable audit store
// degrades observability, not the business operation that triggered the
// event. Failures are logged and counted instead of propagated.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Publisher.
type Option func(p *Publisher)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMetrics wires emit counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher constructs a Publisher over the given store.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records an event, filling in the ID and timestamp when unset.
// It never fails the caller; see the type comment for the contract.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = requestcontext.Now(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.AuditEmitFailures.Inc()
		}
		p.logger.ErrorContext(ctx, "audit event dropped",
			"action", string(event.Action),
			"resource_type", event.ResourceType.String(),
			"resource_id", event.ResourceID,
			"organization_id", event.OrganizationID.String(),
			"error", err,
		)
		return
	}
	if p.metrics != nil {
		p.metrics.AuditEventsRecorded.Inc()
	}
}

// Query reads back events for an organization, newest-first.
func (p *Publisher) Query(ctx context.Context, orgID id.OrganizationID, filter Filter) ([]Event, error) {
	return p.store.Query(ctx, orgID, filter)
}
