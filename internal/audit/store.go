package audit

import (
	"context"

	id "trellis/pkg/domain"
)

// Store persists audit events. Implementations must treat the table as
// append-only: Append and Query are the entire surface.
type Store interface {
	Append(ctx context.Context, event Event) error
	Query(ctx context.Context, orgID id.OrganizationID, filter Filter) ([]Event, error)
}
