package approval

import (
	"context"
	"time"

	id "trellis/pkg/domain"
)

// Store persists approvals.
//
// Decide applies the terminal transition as a single conditional write
// guarded on the row still being pending. Implementations return
// sentinel.ErrNotFound when the approval does not exist in the organization
// and sentinel.ErrInvalidState when it exists but was already decided; the
// row is left untouched in both cases.
type Store interface {
	Create(ctx context.Context, a *Approval) error
	FindByID(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID) (*Approval, error)
	Decide(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID, decision Decision, decidedBy id.MemberID, comment string, at time.Time) (*Approval, error)
	List(ctx context.Context, orgID id.OrganizationID, filter Filter) ([]*Approval, error)
	ListPendingForProject(ctx context.Context, orgID id.OrganizationID, projectID id.ProjectID) ([]*Approval, error)
}
