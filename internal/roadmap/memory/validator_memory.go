// Package memory provides an in-memory milestone validator for tests.
package memory

import (
	"context"
	"sync"
	"time"

	id "trellis/pkg/domain"
	"trellis/pkg/platform/sentinel"
)

// Milestone is the subset of a roadmap item this subsystem touches.
type Milestone struct {
	ID              string
	OrganizationID  id.OrganizationID
	Status          string
	MilestoneStatus string
	ValidatedAt     *time.Time
	ValidatedBy     *id.MemberID
}

// InMemory holds milestones keyed by id.
type InMemory struct {
	mu         sync.Mutex
	milestones map[string]*Milestone
}

// NewInMemory constructs an empty validator.
func NewInMemory() *InMemory {
	return &InMemory{milestones: make(map[string]*Milestone)}
}

// Add seeds a milestone.
func (v *InMemory) Add(m Milestone) {
	v.mu.Lock()
	defer v.mu.Unlock()
	stored := m
	v.milestones[m.ID] = &stored
}

// Get returns a copy of the milestone, if present.
func (v *InMemory) Get(milestoneID string) (Milestone, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.milestones[milestoneID]
	if !ok {
		return Milestone{}, false
	}
	return *m, true
}

func (v *InMemory) ValidateMilestone(_ context.Context, orgID id.OrganizationID, milestoneID string, validatedBy id.MemberID, at time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	m, ok := v.milestones[milestoneID]
	if !ok || m.OrganizationID != orgID {
		return sentinel.ErrNotFound
	}
	m.Status = "done"
	m.MilestoneStatus = "validated"
	if m.ValidatedAt == nil {
		validated := at
		by := validatedBy
		m.ValidatedAt = &validated
		m.ValidatedBy = &by
	}
	return nil
}
