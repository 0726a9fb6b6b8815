package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

type InMemoryShareLinkStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
	orgID id.OrganizationID
	now   time.Time
}

func TestInMemoryShareLinkStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryShareLinkStoreSuite))
}

func (s *InMemoryShareLinkStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.orgID = id.NewOrganizationID()
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryShareLinkStoreSuite) seed(tokenHash string) *sharelink.ShareLink {
	link := &sharelink.ShareLink{
		ID:                id.NewShareLinkID(),
		OrganizationID:    s.orgID,
		CreatedByMemberID: id.NewMemberID(),
		ResourceType:      id.ResourceProject,
		ResourceID:        "project-1",
		TokenHash:         tokenHash,
		Permissions:       sharelink.DefaultPermissions(),
		CreatedAt:         s.now,
	}
	s.Require().NoError(s.store.Create(s.ctx, link))
	return link
}

func (s *InMemoryShareLinkStoreSuite) TestCreate() {
	s.Run("duplicate token hash conflicts", func() {
		s.seed("hash-dup")
		err := s.store.Create(s.ctx, &sharelink.ShareLink{
			ID:        id.NewShareLinkID(),
			TokenHash: "hash-dup",
		})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("stored link is isolated from caller mutation", func() {
		link := s.seed("hash-isolated")
		link.ResourceID = "mutated"

		found, err := s.store.FindByTokenHash(s.ctx, "hash-isolated")
		s.Require().NoError(err)
		s.Equal("project-1", found.ResourceID)
	})
}

func (s *InMemoryShareLinkStoreSuite) TestFind() {
	s.Run("unknown token hash is not found", func() {
		_, err := s.store.FindByTokenHash(s.ctx, "missing")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("FindByID enforces organization scope", func() {
		link := s.seed("hash-scope")

		_, err := s.store.FindByID(s.ctx, id.NewOrganizationID(), link.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)

		found, err := s.store.FindByID(s.ctx, s.orgID, link.ID)
		s.Require().NoError(err)
		s.Equal(link.ID, found.ID)
	})
}

func (s *InMemoryShareLinkStoreSuite) TestRecordAccess() {
	s.Run("concurrent increments all land", func() {
		link := s.seed("hash-burst")

		const visitors = 100
		var wg sync.WaitGroup
		for range visitors {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.RecordAccess(s.ctx, link.ID, s.now)
				s.NoError(err)
			}()
		}
		wg.Wait()

		found, err := s.store.FindByID(s.ctx, s.orgID, link.ID)
		s.Require().NoError(err)
		s.Equal(int64(visitors), found.AccessCount)
	})
}

func (s *InMemoryShareLinkStoreSuite) TestRevoke() {
	s.Run("concurrent revokes have exactly one winner", func() {
		link := s.seed("hash-revoke-race")

		const revokers = 20
		results := make([]bool, revokers)
		var wg sync.WaitGroup
		for i := range revokers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, revokedNow, err := s.store.Revoke(s.ctx, s.orgID, link.ID, s.now.Add(time.Duration(i)*time.Millisecond))
				s.NoError(err)
				results[i] = revokedNow
			}()
		}
		wg.Wait()

		var winners int
		for _, won := range results {
			if won {
				winners++
			}
		}
		s.Equal(1, winners)
	})

	s.Run("revoked timestamp is never overwritten", func() {
		link := s.seed("hash-revoke-once")

		first, revokedNow, err := s.store.Revoke(s.ctx, s.orgID, link.ID, s.now)
		s.Require().NoError(err)
		s.True(revokedNow)

		second, revokedNow, err := s.store.Revoke(s.ctx, s.orgID, link.ID, s.now.Add(time.Hour))
		s.Require().NoError(err)
		s.False(revokedNow)
		s.Equal(*first.RevokedAt, *second.RevokedAt)
	})
}
