// Package approval defines the approval workflow domain: a request/decision
// cycle over a resource, with one-shot terminal transitions.
package approval

import (
	"time"

	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
)

// Status is the lifecycle state of an approval. The initial state is always
// StatusPending; the other three are terminal.
type Status string

const (
	StatusPending          Status = "pending_approval"
	StatusApproved         Status = "approved"
	StatusRejected         Status = "rejected"
	StatusChangesRequested Status = "changes_requested"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusChangesRequested:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// Decision is a terminal status requested by a decider. StatusPending is not
// a decision.
type Decision Status

// Valid reports whether d names one of the three terminal states.
func (d Decision) Valid() bool {
	switch Status(d) {
	case StatusApproved, StatusRejected, StatusChangesRequested:
		return true
	}
	return false
}

func (d Decision) String() string { return string(d) }

// Approval is one request/decision cycle for a privileged action on a
// resource. A resource may accumulate many rows over time; rows are never
// deleted and a decided row never changes again.
type Approval struct {
	ID                  id.ApprovalID     `json:"id"`
	OrganizationID      id.OrganizationID `json:"organization_id"`
	ProjectID           *id.ProjectID     `json:"project_id,omitempty"`
	ResourceType        id.ResourceType   `json:"resource_type"`
	ResourceID          string            `json:"resource_id"`
	Status              Status            `json:"status"`
	RequestedByMemberID id.MemberID       `json:"requested_by_member_id"`
	DecidedByMemberID   *id.MemberID      `json:"decided_by_member_id,omitempty"`
	DecidedAt           *time.Time        `json:"decided_at,omitempty"`
	Comment             string            `json:"comment,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

// IsPending reports whether the approval can still be decided.
func (a *Approval) IsPending() bool { return a.Status == StatusPending }

// RequestParams carries the inputs to RequestApproval.
type RequestParams struct {
	OrganizationID      id.OrganizationID
	ProjectID           *id.ProjectID
	ResourceType        id.ResourceType
	ResourceID          string
	RequestedByMemberID id.MemberID
	Comment             string
}

// Validate checks required fields.
func (p RequestParams) Validate() error {
	if p.OrganizationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "organization id is required")
	}
	if p.RequestedByMemberID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "requesting member id is required")
	}
	if !p.ResourceType.Valid() {
		return dErrors.New(dErrors.CodeValidation, "resource type is required")
	}
	if p.ResourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "resource id is required")
	}
	return nil
}

// Filter narrows approval queries. Zero values mean "any".
type Filter struct {
	ProjectID    *id.ProjectID
	ResourceType id.ResourceType
	Status       Status
	Limit        int
}

// DefaultQueryLimit applies when the caller does not set a limit;
// MaxQueryLimit bounds the limit a caller may set.
const (
	DefaultQueryLimit = 50
	MaxQueryLimit     = 200
)

// Detail is an approval joined with requester and decider identity from the
// member directory.
type Detail struct {
	Approval
	RequestedByName string `json:"requested_by_name,omitempty"`
	DecidedByName   string `json:"decided_by_name,omitempty"`
}
