// Package postgres persists approvals. The decision transition is one
// conditional UPDATE guarded on status, so two concurrent decisions on the
// same row resolve to exactly one winner without a retry loop.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trellis/internal/approval"
	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
	txcontext "trellis/pkg/platform/tx"
)

// Store implements approval.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed approval store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the transaction from context when the caller opened one, so the
// approval write and its audit event commit together.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const approvalColumns = `
	id, organization_id, project_id, resource_type, resource_id, status,
	requested_by_member_id, decided_by_member_id, decided_at, comment, created_at
`

func (s *Store) Create(ctx context.Context, a *approval.Approval) error {
	var projectID any
	if a.ProjectID != nil {
		projectID = uuid.UUID(*a.ProjectID)
	}
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO approvals (`+approvalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(a.ID),
		uuid.UUID(a.OrganizationID),
		projectID,
		a.ResourceType.String(),
		a.ResourceID,
		a.Status.String(),
		uuid.UUID(a.RequestedByMemberID),
		nil,
		nil,
		a.Comment,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID) (*approval.Approval, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+approvalColumns+` FROM approvals WHERE id = $1 AND organization_id = $2
	`, uuid.UUID(approvalID), uuid.UUID(orgID))
	return scanApproval(row)
}

// Decide only touches rows still in pending_approval. When no row matches,
// a follow-up read distinguishes an absent approval from an already-decided
// one.
func (s *Store) Decide(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID, decision approval.Decision, decidedBy id.MemberID, comment string, at time.Time) (*approval.Approval, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		UPDATE approvals
		SET status = $3,
		    decided_by_member_id = $4,
		    decided_at = $5,
		    comment = CASE WHEN $6 <> '' THEN $6 ELSE comment END
		WHERE id = $1 AND organization_id = $2 AND status = $7
		RETURNING `+approvalColumns+`
	`,
		uuid.UUID(approvalID),
		uuid.UUID(orgID),
		decision.String(),
		uuid.UUID(decidedBy),
		at,
		comment,
		approval.StatusPending.String(),
	)

	decided, err := scanApproval(row)
	if err == nil {
		return decided, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	if _, err := s.FindByID(ctx, orgID, approvalID); err != nil {
		return nil, err
	}
	return nil, sentinel.ErrInvalidState
}

func (s *Store) List(ctx context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Approval, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + approvalColumns + ` FROM approvals WHERE organization_id = $1`)
	args := []any{uuid.UUID(orgID)}

	if filter.ProjectID != nil {
		args = append(args, uuid.UUID(*filter.ProjectID))
		sb.WriteString(" AND project_id = $" + strconv.Itoa(len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType.String())
		sb.WriteString(" AND resource_type = $" + strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status.String())
		sb.WriteString(" AND status = $" + strconv.Itoa(len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = approval.DefaultQueryLimit
	}
	if limit > approval.MaxQueryLimit {
		limit = approval.MaxQueryLimit
	}
	args = append(args, limit)
	sb.WriteString(" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)))

	rows, err := s.q(ctx).QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*approval.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals: %w", err)
	}
	return approvals, nil
}

func (s *Store) ListPendingForProject(ctx context.Context, orgID id.OrganizationID, projectID id.ProjectID) ([]*approval.Approval, error) {
	return s.List(ctx, orgID, approval.Filter{
		ProjectID: &projectID,
		Status:    approval.StatusPending,
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApproval(row scanner) (*approval.Approval, error) {
	var (
		a            approval.Approval
		approvalID   uuid.UUID
		orgID        uuid.UUID
		projectID    uuid.NullUUID
		resourceType string
		status       string
		requestedBy  uuid.UUID
		decidedBy    uuid.NullUUID
	)
	err := row.Scan(
		&approvalID,
		&orgID,
		&projectID,
		&resourceType,
		&a.ResourceID,
		&status,
		&requestedBy,
		&decidedBy,
		&a.DecidedAt,
		&a.Comment,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	a.ID = id.ApprovalID(approvalID)
	a.OrganizationID = id.OrganizationID(orgID)
	a.ResourceType = id.ResourceType(resourceType)
	a.Status = approval.Status(status)
	a.RequestedByMemberID = id.MemberID(requestedBy)
	if projectID.Valid {
		pid := id.ProjectID(projectID.UUID)
		a.ProjectID = &pid
	}
	if decidedBy.Valid {
		mid := id.MemberID(decidedBy.UUID)
		a.DecidedByMemberID = &mid
	}
	return &a, nil
}
