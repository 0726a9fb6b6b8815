//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trellis/internal/audit"
	"trellis/internal/audit/store/postgres"
	id "trellis/pkg/domain"
	txcontext "trellis/pkg/platform/tx"
	"trellis/pkg/testutil/containers"
)

type PostgresAuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
	orgID    id.OrganizationID
}

func TestPostgresAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAuditStoreSuite))
}

func (s *PostgresAuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresAuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events", "audit_outbox"))
	s.orgID = id.NewOrganizationID()
}

func (s *PostgresAuditStoreSuite) append(action audit.Action, at time.Time) audit.Event {
	actor := id.NewMemberID()
	event := audit.Event{
		ID:             id.NewEventID(),
		OrganizationID: s.orgID,
		ActorMemberID:  &actor,
		Action:         action,
		ResourceType:   id.ResourceProject,
		ResourceID:     "project-1",
		Meta:           map[string]any{"k": "v"},
		CreatedAt:      at,
	}
	s.Require().NoError(s.store.Append(context.Background(), event))
	return event
}

func (s *PostgresAuditStoreSuite) TestAppendWritesEventAndOutboxRow() {
	event := s.append(audit.ActionShareCreated, time.Now().UTC().Truncate(time.Microsecond))

	var eventCount, outboxCount int
	s.Require().NoError(s.postgres.DB.QueryRow(
		"SELECT count(*) FROM audit_events WHERE id = $1", event.ID.String(),
	).Scan(&eventCount))
	s.Require().NoError(s.postgres.DB.QueryRow(
		"SELECT count(*) FROM audit_outbox WHERE event_id = $1 AND published_at IS NULL", event.ID.String(),
	).Scan(&outboxCount))
	s.Equal(1, eventCount)
	s.Equal(1, outboxCount)
}

func (s *PostgresAuditStoreSuite) event(at time.Time) audit.Event {
	actor := id.NewMemberID()
	return audit.Event{
		ID:             id.NewEventID(),
		OrganizationID: s.orgID,
		ActorMemberID:  &actor,
		Action:         audit.ActionApprovalDecided,
		ResourceType:   id.ResourceMilestone,
		ResourceID:     "milestone-tx",
		CreatedAt:      at,
	}
}

func (s *PostgresAuditStoreSuite) TestCallerRollbackDiscardsAuditRows() {
	ctx := context.Background()
	runner := txcontext.NewRunner(s.postgres.DB)
	event := s.event(time.Now().UTC().Truncate(time.Microsecond))

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, event); err != nil {
			return err
		}
		return errors.New("business write failed")
	})
	s.Require().Error(err)

	var count int
	s.Require().NoError(s.postgres.DB.QueryRow(
		"SELECT count(*) FROM audit_events WHERE id = $1", event.ID.String(),
	).Scan(&count))
	s.Equal(0, count)
}

func (s *PostgresAuditStoreSuite) TestFailedAppendDoesNotAbortCallerTransaction() {
	ctx := context.Background()
	runner := txcontext.NewRunner(s.postgres.DB)
	event := s.event(time.Now().UTC().Truncate(time.Microsecond))

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, event))
		// duplicate primary key; the failure stays confined to its savepoint
		s.Require().Error(s.store.Append(ctx, event))
		return nil
	})
	s.Require().NoError(err)

	var eventCount, outboxCount int
	s.Require().NoError(s.postgres.DB.QueryRow(
		"SELECT count(*) FROM audit_events WHERE id = $1", event.ID.String(),
	).Scan(&eventCount))
	s.Require().NoError(s.postgres.DB.QueryRow(
		"SELECT count(*) FROM audit_outbox WHERE event_id = $1", event.ID.String(),
	).Scan(&outboxCount))
	s.Equal(1, eventCount)
	s.Equal(1, outboxCount)
}

func (s *PostgresAuditStoreSuite) TestQueryFiltersAndOrders() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	s.append(audit.ActionShareCreated, base)
	newest := s.append(audit.ActionShareRevoked, base.Add(time.Second))

	events, err := s.store.Query(context.Background(), s.orgID, audit.Filter{})
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(newest.ID, events[0].ID)

	revoked, err := s.store.Query(context.Background(), s.orgID, audit.Filter{Action: audit.ActionShareRevoked})
	s.Require().NoError(err)
	s.Require().Len(revoked, 1)
	s.Equal("v", revoked[0].Meta["k"])
	s.Require().NotNil(revoked[0].ActorMemberID)
}
