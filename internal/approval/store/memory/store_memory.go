// Package memory provides the in-memory approval store for unit tests and
// local development. Decide mirrors the conditional update the Postgres store
// performs: the check and the write happen under one lock, so concurrent
// decisions resolve to exactly one winner.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trellis/internal/approval"
	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

// InMemory stores approvals keyed by ID.
type InMemory struct {
	mu        sync.Mutex
	approvals map[id.ApprovalID]*approval.Approval
}

// NewInMemory constructs an empty in-memory approval store.
func NewInMemory() *InMemory {
	return &InMemory{approvals: make(map[id.ApprovalID]*approval.Approval)}
}

func (s *InMemory) Create(_ context.Context, a *approval.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *a
	s.approvals[a.ID] = &stored
	return nil
}

func (s *InMemory) FindByID(_ context.Context, orgID id.OrganizationID, approvalID id.ApprovalID) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[approvalID]
	if !ok || a.OrganizationID != orgID {
		return nil, sentinel.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *InMemory) Decide(_ context.Context, orgID id.OrganizationID, approvalID id.ApprovalID, decision approval.Decision, decidedBy id.MemberID, comment string, at time.Time) (*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.approvals[approvalID]
	if !ok || a.OrganizationID != orgID {
		return nil, sentinel.ErrNotFound
	}
	if a.Status != approval.StatusPending {
		return nil, sentinel.ErrInvalidState
	}

	a.Status = approval.Status(decision)
	decider := decidedBy
	decided := at
	a.DecidedByMemberID = &decider
	a.DecidedAt = &decided
	if comment != "" {
		a.Comment = comment
	}
	copied := *a
	return &copied, nil
}

func (s *InMemory) List(_ context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*approval.Approval
	for _, a := range s.approvals {
		if a.OrganizationID != orgID {
			continue
		}
		if filter.ProjectID != nil && (a.ProjectID == nil || *a.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.ResourceType != "" && a.ResourceType != filter.ResourceType {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		copied := *a
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = approval.DefaultQueryLimit
	}
	if limit > approval.MaxQueryLimit {
		limit = approval.MaxQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) ListPendingForProject(ctx context.Context, orgID id.OrganizationID, projectID id.ProjectID) ([]*approval.Approval, error) {
	return s.List(ctx, orgID, approval.Filter{
		ProjectID: &projectID,
		Status:    approval.StatusPending,
	})
}
