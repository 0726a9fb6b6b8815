// Package postgres implements the milestone validation write against the
// roadmap_items table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

// Validator marks roadmap milestones validated in PostgreSQL.
type Validator struct {
	db *sql.DB
}

// New constructs the validator.
func New(db *sql.DB) *Validator {
	return &Validator{db: db}
}

// ValidateMilestone stamps the milestone row and moves it to its terminal
// validated state. Re-validating an already-validated milestone is a no-op;
// the original validation stamp is preserved.
func (v *Validator) ValidateMilestone(ctx context.Context, orgID id.OrganizationID, milestoneID string, validatedBy id.MemberID, at time.Time) error {
	result, err := v.db.ExecContext(ctx, `
		UPDATE roadmap_items
		SET status = 'done',
		    milestone_status = 'validated',
		    validated_at = COALESCE(validated_at, $3),
		    validated_by = COALESCE(validated_by, $4)
		WHERE id = $1 AND organization_id = $2 AND is_milestone
	`, milestoneID, uuid.UUID(orgID), at, uuid.UUID(validatedBy))
	if err != nil {
		return fmt.Errorf("validate milestone: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("validate milestone rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
