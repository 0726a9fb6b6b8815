// Package memory provides the in-memory audit store used by unit tests and
// local development. Semantics mirror the Postgres store: append-only,
// org-scoped queries, newest-first ordering.
package memory

import (
	"context"
	"sort"
	"sync"

	"trellis/internal/audit"
	id "trellis/pkg/domain"
)

// InMemory stores events per organization under a mutex.
type InMemory struct {
	mu     sync.RWMutex
	events map[id.OrganizationID][]audit.Event
}

// NewInMemory constructs an empty in-memory audit store.
func NewInMemory() *InMemory {
	return &InMemory{events: make(map[id.OrganizationID][]audit.Event)}
}

// Append records the event. The meta map is copied so callers cannot mutate
// stored history afterwards.
func (s *InMemory) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Meta != nil {
		meta := make(map[string]any, len(event.Meta))
		for k, v := range event.Meta {
			meta[k] = v
		}
		event.Meta = meta
	}
	s.events[event.OrganizationID] = append(s.events[event.OrganizationID], event)
	return nil
}

// Query returns matching events for one organization, newest-first.
func (s *InMemory) Query(_ context.Context, orgID id.OrganizationID, filter audit.Filter) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if limit > audit.MaxQueryLimit {
		limit = audit.MaxQueryLimit
	}

	var matched []audit.Event
	for _, event := range s.events[orgID] {
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}
		if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
			continue
		}
		if !filter.Since.IsZero() && event.CreatedAt.Before(filter.Since) {
			continue
		}
		matched = append(matched, event)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
