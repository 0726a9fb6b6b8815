package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trellis/internal/audit"
	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
	"trellis/pkg/platform/httputil"
	"trellis/pkg/requestcontext"
)

// Reader is the query surface the handler needs from the audit publisher.
type Reader interface {
	Query(ctx context.Context, orgID id.OrganizationID, filter audit.Filter) ([]audit.Event, error)
}

// Handler exposes the audit trail read API. Writes have no endpoint; events
// only enter through service emission.
type Handler struct {
	reader Reader
	logger *slog.Logger
}

// New constructs the audit handler.
func New(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{reader: reader, logger: logger}
}

// Register mounts the audit routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/events", h.handleQuery)
}

type eventResponse struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	ActorMemberID  *string        `json:"actor_member_id"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id"`
	Meta           map[string]any `json:"meta,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orgID := requestcontext.OrganizationID(ctx)

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.reader.Query(ctx, orgID, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to query audit events"))
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		resp := eventResponse{
			ID:             event.ID.String(),
			OrganizationID: event.OrganizationID.String(),
			Action:         string(event.Action),
			ResourceType:   event.ResourceType.String(),
			ResourceID:     event.ResourceID,
			Meta:           event.Meta,
			CreatedAt:      event.CreatedAt,
		}
		if event.ActorMemberID != nil {
			actor := event.ActorMemberID.String()
			resp.ActorMemberID = &actor
		}
		out = append(out, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func parseFilter(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter
	q := r.URL.Query()

	if raw := q.Get("action"); raw != "" {
		action := audit.Action(raw)
		if !action.Valid() {
			return filter, dErrors.New(dErrors.CodeBadRequest, "unknown action type: "+raw)
		}
		filter.Action = action
	}
	if raw := q.Get("resource_type"); raw != "" {
		rt, err := id.ParseResourceType(raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeBadRequest, "unknown resource type: "+raw)
		}
		filter.ResourceType = rt
	}
	if raw := q.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, dErrors.New(dErrors.CodeBadRequest, "since must be RFC3339")
		}
		filter.Since = since
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer")
		}
		filter.Limit = limit
	}
	return filter, nil
}
