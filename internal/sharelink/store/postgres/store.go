// Package postgres persists share links. Counter updates and revocation are
// single conditional statements so concurrent requests never lose updates.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

const uniqueViolation = "23505"

// Store implements sharelink.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed share link store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const linkColumns = `
	id, organization_id, created_by_member_id, resource_type, resource_id,
	token_hash, permissions, expires_at, revoked_at, last_accessed_at,
	access_count, created_at
`

func (s *Store) Create(ctx context.Context, link *sharelink.ShareLink) error {
	permissionsJSON, err := json.Marshal(link.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO share_links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		uuid.UUID(link.ID),
		uuid.UUID(link.OrganizationID),
		uuid.UUID(link.CreatedByMemberID),
		link.ResourceType.String(),
		link.ResourceID,
		link.TokenHash,
		permissionsJSON,
		link.ExpiresAt,
		link.RevokedAt,
		link.LastAccessedAt,
		link.AccessCount,
		link.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

func (s *Store) FindByTokenHash(ctx context.Context, tokenHash string) (*sharelink.ShareLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM share_links WHERE token_hash = $1
	`, tokenHash)
	return scanLink(row)
}

func (s *Store) FindByID(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID) (*sharelink.ShareLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM share_links WHERE id = $1 AND organization_id = $2
	`, uuid.UUID(linkID), uuid.UUID(orgID))
	return scanLink(row)
}

// RecordAccess increments in place; the returned row reflects the increment
// this call applied even when other accesses race it.
func (s *Store) RecordAccess(ctx context.Context, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE share_links
		SET access_count = access_count + 1, last_accessed_at = $2
		WHERE id = $1
		RETURNING `+linkColumns+`
	`, uuid.UUID(linkID), at)
	return scanLink(row)
}

// Revoke only touches rows where revoked_at is still null, so the first
// revocation timestamp is never overwritten.
func (s *Store) Revoke(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE share_links
		SET revoked_at = $3
		WHERE id = $1 AND organization_id = $2 AND revoked_at IS NULL
		RETURNING `+linkColumns+`
	`, uuid.UUID(linkID), uuid.UUID(orgID), at)

	link, err := scanLink(row)
	if err == nil {
		return link, true, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, err
	}

	// No row updated: either absent in this org, or already revoked.
	link, err = s.FindByID(ctx, orgID, linkID)
	if err != nil {
		return nil, false, err
	}
	return link, false, nil
}

func (s *Store) ListByResource(ctx context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*sharelink.ShareLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM share_links
		WHERE organization_id = $1 AND resource_type = $2 AND resource_id = $3
		  AND revoked_at IS NULL
		ORDER BY created_at DESC
	`, uuid.UUID(orgID), resourceType.String(), resourceID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	defer rows.Close()

	var links []*sharelink.ShareLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}
	return links, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (*sharelink.ShareLink, error) {
	var (
		link            sharelink.ShareLink
		linkID          uuid.UUID
		orgID           uuid.UUID
		memberID        uuid.UUID
		resourceType    string
		permissionsJSON []byte
	)
	err := row.Scan(
		&linkID,
		&orgID,
		&memberID,
		&resourceType,
		&link.ResourceID,
		&link.TokenHash,
		&permissionsJSON,
		&link.ExpiresAt,
		&link.RevokedAt,
		&link.LastAccessedAt,
		&link.AccessCount,
		&link.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan share link: %w", err)
	}
	link.ID = id.ShareLinkID(linkID)
	link.OrganizationID = id.OrganizationID(orgID)
	link.CreatedByMemberID = id.MemberID(memberID)
	link.ResourceType = id.ResourceType(resourceType)
	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &link.Permissions); err != nil {
			return nil, fmt.Errorf("unmarshal permissions: %w", err)
		}
	}
	return &link, nil
}
