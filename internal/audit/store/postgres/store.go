// Package postgres persists audit events. Each append writes the queryable
// event row and an outbox row in one transaction; the outbox relay publishes
// to Kafka out of band, so downstream consumers never sit on the write path.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"trellis/internal/audit"
	id "trellis/pkg/domain"
	txcontext "trellis/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka by the relay.
type outboxPayload struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ActorMemberID  string         `json:"actor_member_id,omitempty"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// Append writes the event and its outbox entry atomically. When the caller
// put a transaction in context both rows join it, so the audit write commits
// or rolls back with the business operation.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}

	payload := outboxPayload{
		ID:             event.ID.String(),
		OrganizationID: event.OrganizationID.String(),
		Action:         string(event.Action),
		ResourceType:   event.ResourceType.String(),
		ResourceID:     event.ResourceID,
		Meta:           event.Meta,
		CreatedAt:      event.CreatedAt.Format(time.RFC3339Nano),
	}
	if event.ActorMemberID != nil {
		payload.ActorMemberID = event.ActorMemberID.String()
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	var actorID *uuid.UUID
	if event.ActorMemberID != nil {
		actor := uuid.UUID(*event.ActorMemberID)
		actorID = &actor
	}

	run := func(ctx context.Context, execer interface {
		ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	}) error {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO audit_events (id, organization_id, actor_member_id, action, resource_type, resource_id, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			uuid.UUID(event.ID),
			uuid.UUID(event.OrganizationID),
			actorID,
			string(event.Action),
			event.ResourceType.String(),
			event.ResourceID,
			metaJSON,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
		_, err = execer.ExecContext(ctx, `
			INSERT INTO audit_outbox (id, event_id, topic_key, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			uuid.New(),
			uuid.UUID(event.ID),
			event.OrganizationID.String(),
			payloadJSON,
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		// A failed audit insert must not abort the caller's transaction:
		// the publisher swallows the error and the business write still
		// commits. The savepoint confines the failure to the audit rows.
		if _, err := tx.ExecContext(ctx, "SAVEPOINT audit_append"); err != nil {
			return fmt.Errorf("savepoint audit append: %w", err)
		}
		if err := run(ctx, tx); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT audit_append"); rbErr != nil {
				return fmt.Errorf("rollback audit savepoint: %w", rbErr)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT audit_append"); err != nil {
			return fmt.Errorf("release audit savepoint: %w", err)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := run(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Query returns matching events for one organization, newest-first.
func (s *Store) Query(ctx context.Context, orgID id.OrganizationID, filter audit.Filter) ([]audit.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT id, organization_id, actor_member_id, action, resource_type, resource_id, meta, created_at
		FROM audit_events
		WHERE organization_id = $1
	`)
	args := []any{uuid.UUID(orgID)}

	if filter.Action != "" {
		args = append(args, string(filter.Action))
		sb.WriteString(" AND action = $" + strconv.Itoa(len(args)))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType.String())
		sb.WriteString(" AND resource_type = $" + strconv.Itoa(len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		sb.WriteString(" AND created_at >= $" + strconv.Itoa(len(args)))
	}

	args = append(args, limit)
	sb.WriteString(" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			eventID  uuid.UUID
			orgUUID  uuid.UUID
			actorID  *uuid.UUID
			action   string
			resType  string
			metaJSON []byte
		)
		err := rows.Scan(&eventID, &orgUUID, &actorID, &action, &resType, &event.ResourceID, &metaJSON, &event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.OrganizationID = id.OrganizationID(orgUUID)
		event.Action = audit.Action(action)
		event.ResourceType = id.ResourceType(resType)
		if actorID != nil {
			actor := id.MemberID(*actorID)
			event.ActorMemberID = &actor
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &event.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal audit meta: %w", err)
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
