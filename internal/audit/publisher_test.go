package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"trellis/internal/platform/metrics"
	id "trellis/pkg/domain"
	"trellis/pkg/requestcontext"
)

// failingStore rejects every append.
type failingStore struct {
	appends int
}

func (s *failingStore) Append(context.Context, Event) error {
	s.appends++
	return errors.New("store unavailable")
}

func (s *failingStore) Query(context.Context, id.OrganizationID, Filter) ([]Event, error) {
	return nil, errors.New("store unavailable")
}

// capturingStore records appended events.
type capturingStore struct {
	events []Event
}

func (s *capturingStore) Append(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *capturingStore) Query(context.Context, id.OrganizationID, Filter) ([]Event, error) {
	return s.events, nil
}

type PublisherSuite struct {
	suite.Suite
	ctx   context.Context
	orgID id.OrganizationID
	now   time.Time
}

func TestPublisherSuite(t *testing.T) {
	suite.Run(t, new(PublisherSuite))
}

func (s *PublisherSuite) SetupTest() {
	s.orgID = id.NewOrganizationID()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *PublisherSuite) event() Event {
	return Event{
		OrganizationID: s.orgID,
		Action:         ActionShareCreated,
		ResourceType:   id.ResourceProject,
		ResourceID:     "project-1",
	}
}

func (s *PublisherSuite) TestEmit() {
	s.Run("fills id and timestamp from the request clock", func() {
		store := &capturingStore{}
		publisher := NewPublisher(store)

		publisher.Emit(s.ctx, s.event())

		s.Require().Len(store.events, 1)
		s.False(store.events[0].ID.IsNil())
		s.Equal(s.now, store.events[0].CreatedAt)
	})

	s.Run("preserves an explicit id and timestamp", func() {
		store := &capturingStore{}
		publisher := NewPublisher(store)

		event := s.event()
		event.ID = id.NewEventID()
		event.CreatedAt = s.now.Add(-time.Hour)
		publisher.Emit(s.ctx, event)

		s.Require().Len(store.events, 1)
		s.Equal(event.ID, store.events[0].ID)
		s.Equal(event.CreatedAt, store.events[0].CreatedAt)
	})

	s.Run("append failure is swallowed and counted", func() {
		store := &failingStore{}
		m := metrics.New(prometheus.NewRegistry())
		publisher := NewPublisher(store, WithMetrics(m))

		publisher.Emit(s.ctx, s.event())

		s.Equal(1, store.appends)
		s.Equal(float64(1), testutil.ToFloat64(m.AuditEmitFailures))
		s.Equal(float64(0), testutil.ToFloat64(m.AuditEventsRecorded))
	})

	s.Run("successful append increments the recorded counter", func() {
		m := metrics.New(prometheus.NewRegistry())
		publisher := NewPublisher(&capturingStore{}, WithMetrics(m))

		publisher.Emit(s.ctx, s.event())

		s.Equal(float64(1), testutil.ToFloat64(m.AuditEventsRecorded))
	})
}
