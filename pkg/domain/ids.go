// Package domain defines the typed identifiers shared across the governance
// core. Distinct ID types keep an organization ID from ever being passed where
// a member ID is expected; the compiler enforces what code review would miss.
package domain

import (
	"github.com/google/uuid"

	dErrors "trellis/pkg/domain-errors"
)

// OrganizationID identifies a tenant organization. Organizations are owned by
// the directory subsystem; this core only scopes rows by them.
type OrganizationID uuid.UUID

// MemberID identifies an actor within an organization. Member records are
// owned externally; this core treats them as opaque, pre-validated references.
type MemberID uuid.UUID

// ProjectID identifies a project. Referenced by approvals, never dereferenced.
type ProjectID uuid.UUID

// ShareLinkID identifies a share link capability.
type ShareLinkID uuid.UUID

// ApprovalID identifies one request/decision cycle.
type ApprovalID uuid.UUID

// EventID identifies an audit event.
type EventID uuid.UUID

func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id MemberID) String() string       { return uuid.UUID(id).String() }
func (id ProjectID) String() string      { return uuid.UUID(id).String() }
func (id ShareLinkID) String() string    { return uuid.UUID(id).String() }
func (id ApprovalID) String() string     { return uuid.UUID(id).String() }
func (id EventID) String() string        { return uuid.UUID(id).String() }

// The ID types are defined on uuid.UUID rather than embedding it, so the
// text marshalers must be restated for JSON to carry IDs as strings.
func (id OrganizationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id MemberID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id ProjectID) MarshalText() ([]byte, error)      { return []byte(id.String()), nil }
func (id ShareLinkID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ApprovalID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id EventID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }

func (id *OrganizationID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *MemberID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *ProjectID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *ShareLinkID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *ApprovalID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id *EventID) UnmarshalText(text []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(text)
}

func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id ShareLinkID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ApprovalID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EventID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }

// NewOrganizationID returns a fresh random organization ID.
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }

// NewMemberID returns a fresh random member ID.
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// NewProjectID returns a fresh random project ID.
func NewProjectID() ProjectID { return ProjectID(uuid.New()) }

// NewShareLinkID returns a fresh random share link ID.
func NewShareLinkID() ShareLinkID { return ShareLinkID(uuid.New()) }

// NewApprovalID returns a fresh random approval ID.
func NewApprovalID() ApprovalID { return ApprovalID(uuid.New()) }

// NewEventID returns a fresh random event ID.
func NewEventID() EventID { return EventID(uuid.New()) }

// ParseOrganizationID parses and validates an organization ID from its string form.
func ParseOrganizationID(raw string) (OrganizationID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return OrganizationID{}, err
	}
	return OrganizationID(u), nil
}

// ParseMemberID parses and validates a member ID from its string form.
func ParseMemberID(raw string) (MemberID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return MemberID{}, err
	}
	return MemberID(u), nil
}

// ParseProjectID parses and validates a project ID from its string form.
func ParseProjectID(raw string) (ProjectID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return ProjectID{}, err
	}
	return ProjectID(u), nil
}

// ParseShareLinkID parses and validates a share link ID from its string form.
func ParseShareLinkID(raw string) (ShareLinkID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return ShareLinkID{}, err
	}
	return ShareLinkID(u), nil
}

// ParseApprovalID parses and validates an approval ID from its string form.
func ParseApprovalID(raw string) (ApprovalID, error) {
	u, err := parseUUID(raw)
	if err != nil {
		return ApprovalID{}, err
	}
	return ApprovalID(u), nil
}

// parseUUID rejects empty, malformed, and nil UUIDs. IDs cross trust
// boundaries as strings, so parsing is where the invariant is enforced.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}
