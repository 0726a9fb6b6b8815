package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trellis/internal/approval"
	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
	"trellis/pkg/platform/httputil"
	"trellis/pkg/requestcontext"
)

// Service defines the approval operations the handler exposes.
type Service interface {
	RequestApproval(ctx context.Context, params approval.RequestParams) (*approval.Approval, error)
	DecideApproval(ctx context.Context, approvalID id.ApprovalID, orgID id.OrganizationID, decidedBy id.MemberID, decision approval.Decision, comment string) (*approval.Approval, error)
	GetApprovals(ctx context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Approval, error)
	GetApprovalByID(ctx context.Context, orgID id.OrganizationID, approvalID id.ApprovalID) (*approval.Approval, error)
	GetPendingApprovalsForProject(ctx context.Context, orgID id.OrganizationID, projectID id.ProjectID) ([]*approval.Approval, error)
	GetApprovalsWithDetails(ctx context.Context, orgID id.OrganizationID, filter approval.Filter) ([]*approval.Detail, error)
}

// Handler wires approval endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs the approval handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the approval routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/approvals", h.handleRequest)
	r.Get("/approvals", h.handleList)
	r.Get("/approvals/details", h.handleListDetails)
	r.Get("/approvals/{id}", h.handleGet)
	r.Post("/approvals/{id}/decision", h.handleDecide)
	r.Get("/projects/{projectID}/approvals/pending", h.handleListPending)
}

type requestBody struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ProjectID    string `json:"project_id,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req requestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	params := approval.RequestParams{
		OrganizationID:      requestcontext.OrganizationID(ctx),
		ResourceType:        id.ResourceType(req.ResourceType),
		ResourceID:          req.ResourceID,
		RequestedByMemberID: requestcontext.MemberID(ctx),
		Comment:             req.Comment,
	}
	if req.ProjectID != "" {
		projectID, err := id.ParseProjectID(req.ProjectID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid project id"))
			return
		}
		params.ProjectID = &projectID
	}

	a, err := h.service.RequestApproval(ctx, params)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to request approval")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{"approval": a})
}

type decisionBody struct {
	Decision string `json:"decision"`
	Comment  string `json:"comment,omitempty"`
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	approvalID, err := id.ParseApprovalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid approval id"))
		return
	}

	var req decisionBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	a, err := h.service.DecideApproval(ctx, approvalID,
		requestcontext.OrganizationID(ctx),
		requestcontext.MemberID(ctx),
		approval.Decision(req.Decision),
		req.Comment,
	)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to decide approval")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approval": a})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	approvals, err := h.service.GetApprovals(ctx, requestcontext.OrganizationID(ctx), filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list approvals")
		return
	}
	if approvals == nil {
		approvals = []*approval.Approval{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func (h *Handler) handleListDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	details, err := h.service.GetApprovalsWithDetails(ctx, requestcontext.OrganizationID(ctx), filter)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list approval details")
		return
	}
	if details == nil {
		details = []*approval.Detail{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approvals": details})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	approvalID, err := id.ParseApprovalID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid approval id"))
		return
	}
	a, err := h.service.GetApprovalByID(ctx, requestcontext.OrganizationID(ctx), approvalID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to get approval")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approval": a})
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid project id"))
		return
	}
	approvals, err := h.service.GetPendingApprovalsForProject(ctx, requestcontext.OrganizationID(ctx), projectID)
	if err != nil {
		h.writeServiceError(ctx, w, err, "failed to list pending approvals")
		return
	}
	if approvals == nil {
		approvals = []*approval.Approval{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"approvals": approvals})
}

func parseFilter(r *http.Request) (approval.Filter, error) {
	q := r.URL.Query()
	filter := approval.Filter{
		ResourceType: id.ResourceType(q.Get("resource_type")),
		Status:       approval.Status(q.Get("status")),
	}
	if raw := q.Get("project_id"); raw != "" {
		projectID, err := id.ParseProjectID(raw)
		if err != nil {
			return approval.Filter{}, dErrors.New(dErrors.CodeBadRequest, "invalid project id")
		}
		filter.ProjectID = &projectID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return approval.Filter{}, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer")
		}
		filter.Limit = limit
	}
	return filter, nil
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
