package sharelink

import (
	"context"
	"time"

	id "trellis/pkg/domain"
)

// Store persists share links. Implementations return sentinel errors
// (pkg/platform/sentinel) for factual states; services translate them into
// domain errors.
type Store interface {
	// Create inserts a new link. Returns sentinel.ErrConflict when the token
	// hash already exists.
	Create(ctx context.Context, link *ShareLink) error

	// FindByTokenHash looks a link up by its token digest, across
	// organizations; the digest is globally unique. Returns sentinel.ErrNotFound
	// when no link matches.
	FindByTokenHash(ctx context.Context, tokenHash string) (*ShareLink, error)

	// FindByID fetches a link scoped to one organization.
	FindByID(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID) (*ShareLink, error)

	// RecordAccess applies a single atomic increment to access_count and sets
	// last_accessed_at, returning the updated link. Never a read-then-write.
	RecordAccess(ctx context.Context, linkID id.ShareLinkID, at time.Time) (*ShareLink, error)

	// Revoke conditionally sets revoked_at where it is still null. The bool
	// reports whether this call performed the revocation; an already-revoked
	// link is returned unchanged with false (first revoke wins).
	Revoke(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID, at time.Time) (*ShareLink, bool, error)

	// ListByResource returns all non-revoked links for one resource,
	// newest-first.
	ListByResource(ctx context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*ShareLink, error)
}
