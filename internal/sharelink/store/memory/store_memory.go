// Package memory provides the in-memory share link store for unit tests and
// local development. The mutex-guarded mutations mirror the conditional
// updates the Postgres store performs, so concurrency properties hold against
// both implementations.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

// InMemory stores share links keyed by ID with a token-hash index.
type InMemory struct {
	mu      sync.Mutex
	links   map[id.ShareLinkID]*sharelink.ShareLink
	byToken map[string]id.ShareLinkID
}

// NewInMemory constructs an empty in-memory share link store.
func NewInMemory() *InMemory {
	return &InMemory{
		links:   make(map[id.ShareLinkID]*sharelink.ShareLink),
		byToken: make(map[string]id.ShareLinkID),
	}
}

func (s *InMemory) Create(_ context.Context, link *sharelink.ShareLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byToken[link.TokenHash]; exists {
		return sentinel.ErrConflict
	}
	stored := *link
	s.links[link.ID] = &stored
	s.byToken[link.TokenHash] = link.ID
	return nil
}

func (s *InMemory) FindByTokenHash(_ context.Context, tokenHash string) (*sharelink.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	linkID, ok := s.byToken[tokenHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.links[linkID]
	return &copied, nil
}

func (s *InMemory) FindByID(_ context.Context, orgID id.OrganizationID, linkID id.ShareLinkID) (*sharelink.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok || link.OrganizationID != orgID {
		return nil, sentinel.ErrNotFound
	}
	copied := *link
	return &copied, nil
}

func (s *InMemory) RecordAccess(_ context.Context, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	link.AccessCount++
	accessed := at
	link.LastAccessedAt = &accessed
	copied := *link
	return &copied, nil
}

func (s *InMemory) Revoke(_ context.Context, orgID id.OrganizationID, linkID id.ShareLinkID, at time.Time) (*sharelink.ShareLink, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[linkID]
	if !ok || link.OrganizationID != orgID {
		return nil, false, sentinel.ErrNotFound
	}
	if link.RevokedAt != nil {
		copied := *link
		return &copied, false, nil
	}
	revoked := at
	link.RevokedAt = &revoked
	copied := *link
	return &copied, true, nil
}

func (s *InMemory) ListByResource(_ context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*sharelink.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*sharelink.ShareLink
	for _, link := range s.links {
		if link.OrganizationID != orgID || link.ResourceType != resourceType || link.ResourceID != resourceID {
			continue
		}
		if link.RevokedAt != nil {
			continue
		}
		copied := *link
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}
