// Package memory provides an in-memory member directory for tests.
package memory

import (
	"context"
	"sync"

	"trellis/internal/directory"
	id "trellis/pkg/domain"
)

// InMemory holds members keyed by organization.
type InMemory struct {
	mu      sync.RWMutex
	members map[id.OrganizationID]map[id.MemberID]directory.Member
}

// NewInMemory constructs an empty directory.
func NewInMemory() *InMemory {
	return &InMemory{members: make(map[id.OrganizationID]map[id.MemberID]directory.Member)}
}

// Add seeds a member.
func (d *InMemory) Add(orgID id.OrganizationID, member directory.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[orgID] == nil {
		d.members[orgID] = make(map[id.MemberID]directory.Member)
	}
	d.members[orgID][member.ID] = member
}

func (d *InMemory) LookupMembers(_ context.Context, orgID id.OrganizationID, memberIDs []id.MemberID) (map[id.MemberID]directory.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	found := make(map[id.MemberID]directory.Member, len(memberIDs))
	orgMembers := d.members[orgID]
	for _, memberID := range memberIDs {
		if member, ok := orgMembers[memberID]; ok {
			found[memberID] = member
		}
	}
	return found, nil
}
