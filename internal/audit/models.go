package audit

import (
	"time"

	id "trellis/pkg/domain"
)

// Action identifies the privileged operation an event records.
type Action string

const (
	ActionShareCreated      Action = "share.created"
	ActionShareAccessed     Action = "share.accessed"
	ActionShareRevoked      Action = "share.revoked"
	ActionApprovalRequested Action = "approval.requested"
	ActionApprovalDecided   Action = "approval.decided"
)

// Valid reports whether a is one of the recorded action types.
func (a Action) Valid() bool {
	switch a {
	case ActionShareCreated, ActionShareAccessed, ActionShareRevoked,
		ActionApprovalRequested, ActionApprovalDecided:
		return true
	}
	return false
}

// Event is an immutable record of a privileged action. Events are emitted from
// domain logic as a side effect of every mutating governance operation and are
// never updated or deleted; no code path in this repository issues an UPDATE
// or DELETE against the trail.
type Event struct {
	ID             id.EventID
	OrganizationID id.OrganizationID
	// ActorMemberID is nil for anonymous actions, e.g. a share link visit.
	ActorMemberID *id.MemberID
	Action        Action
	ResourceType  id.ResourceType
	ResourceID    string
	Meta          map[string]any
	CreatedAt     time.Time
}

// Filter narrows a query. Zero-valued fields are ignored; set fields combine
// conjunctively. Results are always scoped to one organization and returned
// newest-first.
type Filter struct {
	Action       Action
	ResourceType id.ResourceType
	Since        time.Time
	Limit        int
}

// DefaultQueryLimit applies when a filter leaves Limit unset;
// MaxQueryLimit bounds the limit a filter may carry.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)
