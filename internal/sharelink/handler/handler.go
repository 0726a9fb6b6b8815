package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
	"trellis/pkg/platform/httputil"
	"trellis/pkg/requestcontext"
)

// Service defines the share link operations the handler exposes.
type Service interface {
	CreateShareLink(ctx context.Context, params sharelink.CreateParams) (*sharelink.CreateResult, error)
	ValidateShareToken(ctx context.Context, token string) (*sharelink.Validation, error)
	RecordShareAccess(ctx context.Context, link *sharelink.ShareLink, info sharelink.AccessInfo) error
	RevokeShareLink(ctx context.Context, linkID id.ShareLinkID, orgID id.OrganizationID, actor id.MemberID) (*sharelink.ShareLink, error)
	GetShareLinksByResource(ctx context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*sharelink.ShareLink, error)
}

// Handler wires share link endpoints. Member-facing management routes go
// through RegisterManagement (behind identity middleware); the anonymous
// visitor route goes through RegisterPublic.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs the share link handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterManagement mounts the authenticated management routes.
func (h *Handler) RegisterManagement(r chi.Router) {
	r.Post("/share-links", h.handleCreate)
	r.Get("/share-links", h.handleListByResource)
	r.Post("/share-links/{id}/revoke", h.handleRevoke)
}

// RegisterPublic mounts the anonymous share viewer route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/share/{token}", h.handleVisit)
}

type createRequest struct {
	ResourceType  string                 `json:"resource_type"`
	ResourceID    string                 `json:"resource_id"`
	ExpiresInDays *int                   `json:"expires_in_days"`
	Permissions   *sharelink.Permissions `json:"permissions"`
}

type createResponse struct {
	ShareLink *sharelink.ShareLink `json:"share_link"`
	Token     string               `json:"token"`
	ShareURL  string               `json:"share_url"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.service.CreateShareLink(ctx, sharelink.CreateParams{
		OrganizationID:    requestcontext.OrganizationID(ctx),
		CreatedByMemberID: requestcontext.MemberID(ctx),
		ResourceType:      id.ResourceType(req.ResourceType),
		ResourceID:        req.ResourceID,
		ExpiresInDays:     req.ExpiresInDays,
		Permissions:       req.Permissions,
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to create share link")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createResponse{
		ShareLink: result.ShareLink,
		Token:     result.Token,
		ShareURL:  result.ShareURL,
	})
}

func (h *Handler) handleListByResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	links, err := h.service.GetShareLinksByResource(ctx,
		requestcontext.OrganizationID(ctx),
		id.ResourceType(q.Get("resource_type")),
		q.Get("resource_id"),
	)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list share links")
		return
	}
	if links == nil {
		links = []*sharelink.ShareLink{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"share_links": links})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	linkID, err := id.ParseShareLinkID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid share link id"))
		return
	}

	link, err := h.service.RevokeShareLink(ctx, linkID,
		requestcontext.OrganizationID(ctx),
		requestcontext.MemberID(ctx),
	)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to revoke share link")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"share_link": link})
}

type visitResponse struct {
	Valid     bool                 `json:"valid"`
	Error     string               `json:"error,omitempty"`
	ShareLink *sharelink.ShareLink `json:"share_link,omitempty"`
}

// handleVisit validates the presented token and, when valid, records the
// access. Validation failures return 200 with valid=false so the viewer can
// distinguish reasons without treating them as transport errors.
func (h *Handler) handleVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	validation, err := h.service.ValidateShareToken(ctx, chi.URLParam(r, "token"))
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to validate share token")
		return
	}
	if !validation.Valid {
		httputil.WriteJSON(w, http.StatusOK, visitResponse{
			Valid: false,
			Error: string(validation.Reason),
		})
		return
	}

	err = h.service.RecordShareAccess(ctx, validation.ShareLink, sharelink.AccessInfo{
		IP:        requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
	})
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to record share access")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, visitResponse{
		Valid:     true,
		ShareLink: validation.ShareLink,
	})
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, err error, message string) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, message,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
