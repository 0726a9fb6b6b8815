package sharelink

import (
	"time"

	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
)

// ShareLink is a capability granting anonymous read access to one resource.
//
// Invariants:
//   - The raw token exists only transiently: generated, returned once to the
//     caller, never persisted or logged. Only TokenHash is stored.
//   - TokenHash is unique across all organizations.
//   - Once RevokedAt is set it is never cleared.
//   - AccessCount only increases.
//
// Share links are never hard-deleted; revocation is the terminal state.
type ShareLink struct {
	ID                id.ShareLinkID    `json:"id"`
	OrganizationID    id.OrganizationID `json:"organization_id"`
	CreatedByMemberID id.MemberID       `json:"created_by_member_id"`
	ResourceType      id.ResourceType   `json:"resource_type"`
	ResourceID        string            `json:"resource_id"`
	TokenHash         string            `json:"-"`
	Permissions       Permissions       `json:"permissions"`
	ExpiresAt         *time.Time        `json:"expires_at"`
	RevokedAt         *time.Time        `json:"revoked_at"`
	LastAccessedAt    *time.Time        `json:"last_accessed_at"`
	AccessCount       int64             `json:"access_count"`
	CreatedAt         time.Time         `json:"created_at"`
}

// IsRevoked reports whether the link has been permanently deactivated.
func (l *ShareLink) IsRevoked() bool { return l.RevokedAt != nil }

// IsExpired reports whether the link's expiry is at or before now.
// Links without an expiry never expire.
func (l *ShareLink) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Permissions is the structured read scope attached to a link. The external
// viewer renders only what the scope allows; this core just stores and
// returns it.
type Permissions struct {
	ViewTasks       bool `json:"view_tasks"`
	ViewNotes       bool `json:"view_notes"`
	ViewAttachments bool `json:"view_attachments"`
}

// DefaultPermissions is the scope applied when the creator supplies none:
// task visibility only.
func DefaultPermissions() Permissions {
	return Permissions{ViewTasks: true}
}

// CreateParams carries everything needed to issue a link.
type CreateParams struct {
	OrganizationID    id.OrganizationID
	CreatedByMemberID id.MemberID
	ResourceType      id.ResourceType
	ResourceID        string
	// ExpiresInDays of nil means the link never expires.
	ExpiresInDays *int
	// Permissions of nil applies DefaultPermissions.
	Permissions *Permissions
}

// Validate enforces required fields before any secret is generated.
func (p CreateParams) Validate() error {
	if p.OrganizationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "organization id is required")
	}
	if p.CreatedByMemberID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "creating member id is required")
	}
	if !p.ResourceType.Valid() {
		return dErrors.New(dErrors.CodeValidation, "resource type is required")
	}
	if p.ResourceID == "" {
		return dErrors.New(dErrors.CodeValidation, "resource id is required")
	}
	if p.ExpiresInDays != nil && *p.ExpiresInDays <= 0 {
		return dErrors.New(dErrors.CodeValidation, "expires_in_days must be positive")
	}
	return nil
}

// CreateResult is returned exactly once per link. Token is the only copy of
// the secret that will ever exist; losing it means revoking and recreating.
type CreateResult struct {
	ShareLink *ShareLink
	Token     string
	ShareURL  string
}

// ValidationReason enumerates why a token failed validation. The distinction
// is surfaced to anonymous callers so the viewer can render correct messaging;
// that this confirms a link once existed is an accepted disclosure trade-off.
type ValidationReason string

const (
	ReasonNotFound ValidationReason = "not_found"
	ReasonRevoked  ValidationReason = "revoked"
	ReasonExpired  ValidationReason = "expired"
)

// Validation is the outcome of checking a presented token. Invalid tokens are
// a normal domain outcome, not an error; errors are reserved for storage
// failures.
type Validation struct {
	Valid     bool
	ShareLink *ShareLink
	Reason    ValidationReason
}

// AccessInfo captures request metadata recorded with an anonymous visit.
type AccessInfo struct {
	IP        string
	UserAgent string
}
