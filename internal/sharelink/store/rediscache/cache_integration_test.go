//go:build integration

package rediscache_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trellis/internal/sharelink"
	"trellis/internal/sharelink/store/memory"
	"trellis/internal/sharelink/store/rediscache"
	id "trellis/pkg/domain"
	"trellis/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	next  *memory.InMemory
	cache *rediscache.Cache
	orgID id.OrganizationID
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.next = memory.NewInMemory()
	s.cache = rediscache.New(s.next, s.redis.Client, time.Minute, slog.New(slog.DiscardHandler))
	s.orgID = id.NewOrganizationID()
}

func (s *RedisCacheSuite) seed(tokenHash string) *sharelink.ShareLink {
	link := &sharelink.ShareLink{
		ID:                id.NewShareLinkID(),
		OrganizationID:    s.orgID,
		CreatedByMemberID: id.NewMemberID(),
		ResourceType:      id.ResourceProject,
		ResourceID:        "project-1",
		TokenHash:         tokenHash,
		Permissions:       sharelink.DefaultPermissions(),
		CreatedAt:         time.Now().UTC().Truncate(time.Millisecond),
	}
	s.Require().NoError(s.cache.Create(context.Background(), link))
	return link
}

func (s *RedisCacheSuite) TestReadThrough() {
	ctx := context.Background()
	link := s.seed("digest-cache")

	// first read populates the cache
	first, err := s.cache.FindByTokenHash(ctx, "digest-cache")
	s.Require().NoError(err)
	s.Equal(link.ID, first.ID)
	s.Equal("digest-cache", first.TokenHash)

	exists, err := s.redis.Client.Exists(ctx, "sharelink:token:digest-cache").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), exists)

	// cached reads restore the token hash the JSON form omits
	cached, err := s.cache.FindByTokenHash(ctx, "digest-cache")
	s.Require().NoError(err)
	s.Equal(link.ID, cached.ID)
	s.Equal("digest-cache", cached.TokenHash)
}

func (s *RedisCacheSuite) TestRevokeInvalidates() {
	ctx := context.Background()
	link := s.seed("digest-invalidate")

	_, err := s.cache.FindByTokenHash(ctx, "digest-invalidate")
	s.Require().NoError(err)

	_, revokedNow, err := s.cache.Revoke(ctx, s.orgID, link.ID, time.Now())
	s.Require().NoError(err)
	s.True(revokedNow)

	// next lookup must come from the store and carry the revocation
	found, err := s.cache.FindByTokenHash(ctx, "digest-invalidate")
	s.Require().NoError(err)
	s.NotNil(found.RevokedAt)
}

func (s *RedisCacheSuite) TestRecordAccessInvalidates() {
	ctx := context.Background()
	link := s.seed("digest-access")

	_, err := s.cache.FindByTokenHash(ctx, "digest-access")
	s.Require().NoError(err)

	_, err = s.cache.RecordAccess(ctx, link.ID, time.Now())
	s.Require().NoError(err)

	found, err := s.cache.FindByTokenHash(ctx, "digest-access")
	s.Require().NoError(err)
	s.Equal(int64(1), found.AccessCount)
}
