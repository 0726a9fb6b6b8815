// Package postgres reads member identity from the members table. This
// subsystem never writes it.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trellis/internal/directory"
	id "trellis/pkg/domain"
)

// Directory implements directory.MemberDirectory on PostgreSQL.
type Directory struct {
	db *sql.DB
}

// New constructs the directory reader.
func New(db *sql.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) LookupMembers(ctx context.Context, orgID id.OrganizationID, memberIDs []id.MemberID) (map[id.MemberID]directory.Member, error) {
	members := make(map[id.MemberID]directory.Member, len(memberIDs))
	if len(memberIDs) == 0 {
		return members, nil
	}

	ids := make([]uuid.UUID, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		ids = append(ids, uuid.UUID(memberID))
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, email
		FROM members
		WHERE organization_id = $1 AND id = ANY($2)
	`, uuid.UUID(orgID), pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("lookup members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			memberID uuid.UUID
			member   directory.Member
		)
		if err := rows.Scan(&memberID, &member.Name, &member.Email); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		member.ID = id.MemberID(memberID)
		members[member.ID] = member
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}
