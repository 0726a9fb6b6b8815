// Package roadmap exposes the single write this subsystem performs against
// the roadmap-owned data: marking a milestone validated after its approval.
package roadmap

import (
	"context"
	"time"

	id "trellis/pkg/domain"
)

// MilestoneValidator marks a roadmap milestone as validated. The roadmap
// aggregate is owned elsewhere; this port is the only crossing point.
type MilestoneValidator interface {
	ValidateMilestone(ctx context.Context, orgID id.OrganizationID, milestoneID string, validatedBy id.MemberID, at time.Time) error
}
