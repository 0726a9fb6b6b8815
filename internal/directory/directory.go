// Package directory is a read-only port onto the organization member
// directory, used to decorate approvals with requester and decider identity.
package directory

import (
	"context"

	id "trellis/pkg/domain"
)

// Member is the identity projection this subsystem reads.
type Member struct {
	ID    id.MemberID
	Name  string
	Email string
}

// MemberDirectory resolves member ids to identity. Unknown ids are simply
// absent from the result, not an error.
type MemberDirectory interface {
	LookupMembers(ctx context.Context, orgID id.OrganizationID, memberIDs []id.MemberID) (map[id.MemberID]Member, error)
}
