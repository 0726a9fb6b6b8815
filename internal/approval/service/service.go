// Package service implements the approval workflow: requesting, deciding,
// and querying approvals, with per-resource-type side effects on approval.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trellis/internal/approval"
	"trellis/internal/audit"
	"trellis/internal/directory"
	"trellis/internal/platform/metrics"
	"trellis/internal/roadmap"
	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
	"trellis/pkg/platform/sentinel"
	"trellis/pkg/requestcontext"
)

// Auditor records governance events without failing the caller.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// SideEffectHandler runs after an approval is granted. Handlers execute
// outside the decision write; a failing handler is logged and counted, never
// rolled into the decision outcome.
type SideEffectHandler func(ctx context.Context, a *approval.Approval) error

// Transactor runs a function inside one database transaction. When the
// backing stores honor the context carrier, the approval write and its audit
// event commit or roll back together. Without one, operations run directly.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service orchestrates the request/decision workflow.
type Service struct {
	store       approval.Store
	auditor     Auditor
	members     directory.MemberDirectory
	transactor  Transactor
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	sideEffects map[id.ResourceType]SideEffectHandler
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics wires approval counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMemberDirectory wires the directory used by GetApprovalsWithDetails.
func WithMemberDirectory(members directory.MemberDirectory) Option {
	return func(s *Service) { s.members = members }
}

// WithTransactor wraps the request and decide writes in a transaction shared
// with the audit store.
func WithTransactor(t Transactor) Option {
	return func(s *Service) { s.transactor = t }
}

// WithMilestoneValidator registers the milestone approval side effect.
func WithMilestoneValidator(validator roadmap.MilestoneValidator) Option {
	return func(s *Service) {
		s.RegisterSideEffect(id.ResourceMilestone, func(ctx context.Context, a *approval.Approval) error {
			return validator.ValidateMilestone(ctx, a.OrganizationID, a.ResourceID, *a.DecidedByMemberID, *a.DecidedAt)
		})
	}
}

// New constructs the approval service.
func New(store approval.Store, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		store:       store,
		auditor:     auditor,
		logger:      slog.Default(),
		tracer:      otel.Tracer("trellis/approval"),
		sideEffects: make(map[id.ResourceType]SideEffectHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterSideEffect binds a handler to run when an approval for the given
// resource type is granted. One handler per resource type; later
// registrations replace earlier ones.
func (s *Service) RegisterSideEffect(resourceType id.ResourceType, handler SideEffectHandler) {
	s.sideEffects[resourceType] = handler
}

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.transactor == nil {
		return fn(ctx)
	}
	return s.transactor.RunInTx(ctx, fn)
}

// RequestApproval opens a new request/decision cycle. Every call creates a
// fresh pending row; earlier cycles for the same resource are untouched.
func (s *Service) RequestApproval(ctx context.Context, params approval.RequestParams) (*approval.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.request")
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	a := &approval.Approval{
		ID:                  id.NewApprovalID(),
		OrganizationID:      params.OrganizationID,
		ProjectID:           params.ProjectID,
		ResourceType:        params.ResourceType,
		ResourceID:          params.ResourceID,
		Status:              approval.StatusPending,
		RequestedByMemberID: params.RequestedByMemberID,
		Comment:             params.Comment,
		CreatedAt:           requestcontext.Now(ctx),
	}
	err := s.inTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create approval")
		}
		actor := params.RequestedByMemberID
		s.auditor.Emit(ctx, audit.Event{
			OrganizationID: a.OrganizationID,
			ActorMemberID:  &actor,
			Action:         audit.ActionApprovalRequested,
			ResourceType:   a.ResourceType,
			ResourceID:     a.ResourceID,
			Meta:           map[string]any{"approval_id": a.ID.String()},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "approval requested",
		"approval_id", a.ID.String(),
		"organization_id", a.OrganizationID.String(),
		"resource_type", a.ResourceType.String(),
	)
	if s.metrics != nil {
		s.metrics.ApprovalsRequested.Inc()
	}
	return a, nil
}

// DecideApproval applies a terminal decision to a pending approval. The
// transition is a single conditional store write; when two deciders race,
// one wins and the other gets an invalid-state error. Side effects run after
// the decision committed and never undo it.
func (s *Service) DecideApproval(ctx context.Context, approvalID id.ApprovalID, orgID id.OrganizationID, decidedBy id.MemberID, decision approval.Decision, comment string) (*approval.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.decide")
	defer span.End()

	if !decision.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "decision must be approved, rejected, or changes_requested")
	}
	if decidedBy.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "deciding member id is required")
	}

	var decided *approval.Approval
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		decided, err = s.store.Decide(ctx, orgID, approvalID, decision, decidedBy, comment, requestcontext.Now(ctx))
		if err != nil {
			return err
		}
		s.auditor.Emit(ctx, audit.Event{
			OrganizationID: decided.OrganizationID,
			ActorMemberID:  &decidedBy,
			Action:         audit.ActionApprovalDecided,
			ResourceType:   decided.ResourceType,
			ResourceID:     decided.ResourceID,
			Meta: map[string]any{
				"approval_id": decided.ID.String(),
				"decision":    decision.String(),
			},
		})
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "approval not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			if s.metrics != nil {
				s.metrics.DecisionConflicts.Inc()
			}
			return nil, dErrors.New(dErrors.CodeInvalidState, "approval has already been decided")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide approval")
		}
	}
	if s.metrics != nil {
		s.metrics.ApprovalsDecided.WithLabelValues(decision.String()).Inc()
	}

	if decided.Status == approval.StatusApproved {
		s.runSideEffect(ctx, decided)
	}
	return decided, nil
}

func (s *Service) runSideEffect(ctx context.Context, a *approval.Approval) {
	handler, ok := s.sideEffects[a.ResourceType]
	if !ok {
		return
	}
	if err := handler(ctx, a); err != nil {
		s.logger.ErrorContext(ctx, "approval side effect failed",
			"approval_id", a.ID.String(),
			"resource_type", a.ResourceType.String(),
			"resource_id", a.ResourceID,
			"error", err.Error(),
		)
		if s.metrics != nil {
			s.metrics.SideEffectFailures.Inc()
		}
	}
}

// GetApprovals lists approvals newest-first, capped by the filter limit.
func (s *Service) GetApprovals(ctx context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.list")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown approval status")
	}
	if filter.ResourceType != "" && !filter.ResourceType.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown resource type")
	}
	approvals, err := s.store.List(ctx, orgID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list approvals")
	}
	return approvals, nil
}

// GetApprovalByID fetches one approval scoped to the organization.
func (s *Service) GetApprovalByID(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID) (*approval.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.get")
	defer span.End()

	a, err := s.store.FindByID(ctx, orgID, approvalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "approval not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to get approval")
	}
	return a, nil
}

// GetPendingApprovalsForProject lists the open approvals of one project.
func (s *Service) GetPendingApprovalsForProject(ctx context.Context, orgID id.OrganizationID, projectID id.ProjectID) ([]*approval.Approval, error) {
	ctx, span := s.tracer.Start(ctx, "approval.list_pending")
	defer span.End()

	approvals, err := s.store.ListPendingForProject(ctx, orgID, projectID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending approvals")
	}
	return approvals, nil
}

// GetApprovalsWithDetails lists approvals decorated with requester and
// decider identity from the member directory. A missing directory entry
// leaves the name fields empty rather than failing the listing.
func (s *Service) GetApprovalsWithDetails(ctx context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Detail, error) {
	ctx, span := s.tracer.Start(ctx, "approval.list_details")
	defer span.End()

	approvals, err := s.GetApprovals(ctx, orgID, filter)
	if err != nil {
		return nil, err
	}

	memberIDs := make([]id.MemberID, 0, len(approvals)*2)
	seen := make(map[id.MemberID]struct{})
	for _, a := range approvals {
		for _, memberID := range approvalMemberIDs(a) {
			if _, dup := seen[memberID]; dup {
				continue
			}
			seen[memberID] = struct{}{}
			memberIDs = append(memberIDs, memberID)
		}
	}

	var members map[id.MemberID]directory.Member
	if s.members != nil && len(memberIDs) > 0 {
		members, err = s.members.LookupMembers(ctx, orgID, memberIDs)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up members")
		}
	}

	details := make([]*approval.Detail, 0, len(approvals))
	for _, a := range approvals {
		detail := &approval.Detail{Approval: *a}
		if member, ok := members[a.RequestedByMemberID]; ok {
			detail.RequestedByName = member.Name
		}
		if a.DecidedByMemberID != nil {
			if member, ok := members[*a.DecidedByMemberID]; ok {
				detail.DecidedByName = member.Name
			}
		}
		details = append(details, detail)
	}
	return details, nil
}

func approvalMemberIDs(a *approval.Approval) []id.MemberID {
	ids := []id.MemberID{a.RequestedByMemberID}
	if a.DecidedByMemberID != nil {
		ids = append(ids, *a.DecidedByMemberID)
	}
	return ids
}
