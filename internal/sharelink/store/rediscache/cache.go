// Package rediscache decorates a share link store with a read-through cache
// on the token-hash lookup, the hot path of anonymous share validation.
//
// Staleness discipline: revocation and access recording both go through this
// decorator and invalidate the cached entry, so a revoked link is never
// served from cache beyond the in-flight request that raced the revoke. The
// TTL bounds staleness for writes that bypass the service (manual surgery).
package rediscache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
)

const keyPrefix = "sharelink:token:"

// Cache wraps an underlying store. Cache failures degrade to the underlying
// store; they are logged, never surfaced.
type Cache struct {
	next   sharelink.Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New constructs the caching decorator.
func New(next sharelink.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{next: next, client: client, ttl: ttl, logger: logger}
}

// cachedLink adds the token hash back in; the JSON form of ShareLink
// deliberately omits it.
type cachedLink struct {
	Link      *sharelink.ShareLink `json:"link"`
	TokenHash string               `json:"token_hash"`
}

func (c *Cache) Create(ctx context.Context, link *sharelink.ShareLink) error {
	return c.next.Create(ctx, link)
}

func (c *Cache) FindByTokenHash(ctx context.Context, tokenHash string) (*sharelink.ShareLink, error) {
	key := keyPrefix + tokenHash
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cached cachedLink
		if err := json.Unmarshal(raw, &cached); err == nil && cached.Link != nil {
			cached.Link.TokenHash = cached.TokenHash
			return cached.Link, nil
		}
	}

	link, err := c.next.FindByTokenHash(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	if raw, marshalErr := json.Marshal(cachedLink{Link: link, TokenHash: link.TokenHash}); marshalErr == nil {
		if setErr := c.client.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "share link cache set failed", "error", setErr)
		}
	}
	return link, nil
}

func (c *Cache) FindByID(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID) (*sharelink.ShareLink, error) {
	return c.next.FindByID(ctx, orgID, linkID)
}

func (c *Cache) RecordAccess(ctx context.Context, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, error) {
	link, err := c.next.RecordAccess(ctx, linkID, at)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, link.TokenHash)
	return link, nil
}

func (c *Cache) Revoke(ctx context.Context, orgID id.OrganizationID, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, bool, error) {
	link, revokedNow, err := c.next.Revoke(ctx, orgID, linkID, at)
	if err != nil {
		return nil, false, err
	}
	c.invalidate(ctx, link.TokenHash)
	return link, revokedNow, nil
}

func (c *Cache) ListByResource(ctx context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*sharelink.ShareLink, error) {
	return c.next.ListByResource(ctx, orgID, resourceType, resourceID)
}

func (c *Cache) invalidate(ctx context.Context, tokenHash string) {
	if err := c.client.Del(ctx, keyPrefix+tokenHash).Err(); err != nil {
		c.logger.WarnContext(ctx, "share link cache invalidation failed", "error", err)
	}
}
