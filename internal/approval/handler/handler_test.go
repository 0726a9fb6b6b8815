package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"trellis/internal/approval"
	"trellis/internal/approval/service"
	"trellis/internal/approval/store/memory"
	"trellis/internal/audit"
	"trellis/internal/platform/middleware"
	id "trellis/pkg/domain"
)

type noopAuditor struct{}

func (noopAuditor) Emit(context.Context, audit.Event) {}

type ApprovalHandlerSuite struct {
	suite.Suite
	router  *chi.Mux
	orgID   id.OrganizationID
	actorID id.MemberID
}

func TestApprovalHandlerSuite(t *testing.T) {
	suite.Run(t, new(ApprovalHandlerSuite))
}

func (s *ApprovalHandlerSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	svc := service.New(memory.NewInMemory(), noopAuditor{}, service.WithLogger(log))
	h := New(svc, log)

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestTime)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireIdentity(log))
		h.Register(r)
	})

	s.orgID = id.NewOrganizationID()
	s.actorID = id.NewMemberID()
}

func (s *ApprovalHandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(middleware.HeaderOrganizationID, s.orgID.String())
	req.Header.Set(middleware.HeaderMemberID, s.actorID.String())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

type approvalEnvelope struct {
	Approval *approval.Approval `json:"approval"`
}

func (s *ApprovalHandlerSuite) request(resourceID string) *approval.Approval {
	rec := s.do(http.MethodPost, "/api/approvals", map[string]any{
		"resource_type": "milestone",
		"resource_id":   resourceID,
	})
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp approvalEnvelope
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().NotNil(resp.Approval)
	return resp.Approval
}

func (s *ApprovalHandlerSuite) TestRequest() {
	s.Run("creates a pending approval", func() {
		a := s.request("milestone-1")
		s.Equal(approval.StatusPending, a.Status)
		s.Equal(s.actorID, a.RequestedByMemberID)
	})

	s.Run("rejects a malformed project id", func() {
		rec := s.do(http.MethodPost, "/api/approvals", map[string]any{
			"resource_type": "project",
			"resource_id":   "p-1",
			"project_id":    "not-a-uuid",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("rejects a missing resource id", func() {
		rec := s.do(http.MethodPost, "/api/approvals", map[string]any{
			"resource_type": "project",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ApprovalHandlerSuite) TestDecide() {
	s.Run("approves a pending approval", func() {
		a := s.request("milestone-2")

		rec := s.do(http.MethodPost, fmt.Sprintf("/api/approvals/%s/decision", a.ID), map[string]any{
			"decision": "approved",
			"comment":  "looks good",
		})
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp approvalEnvelope
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(approval.StatusApproved, resp.Approval.Status)
		s.Require().NotNil(resp.Approval.DecidedByMemberID)
		s.Equal(s.actorID, *resp.Approval.DecidedByMemberID)
	})

	s.Run("second decision is 409", func() {
		a := s.request("milestone-3")
		path := fmt.Sprintf("/api/approvals/%s/decision", a.ID)

		first := s.do(http.MethodPost, path, map[string]any{"decision": "rejected"})
		s.Require().Equal(http.StatusOK, first.Code)

		second := s.do(http.MethodPost, path, map[string]any{"decision": "approved"})
		s.Equal(http.StatusConflict, second.Code)
	})

	s.Run("unknown approval is 404", func() {
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/approvals/%s/decision", id.NewApprovalID()), map[string]any{
			"decision": "approved",
		})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("unknown decision is 400", func() {
		a := s.request("milestone-4")
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/approvals/%s/decision", a.ID), map[string]any{
			"decision": "maybe",
		})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ApprovalHandlerSuite) TestQueries() {
	s.Run("lists approvals with status filter", func() {
		s.request("milestone-5")

		rec := s.do(http.MethodGet, "/api/approvals?status=pending_approval", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp struct {
			Approvals []*approval.Approval `json:"approvals"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.NotEmpty(resp.Approvals)
	})

	s.Run("rejects a non-positive limit", func() {
		rec := s.do(http.MethodGet, "/api/approvals?limit=0", nil)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("gets one approval by id", func() {
		a := s.request("milestone-6")

		rec := s.do(http.MethodGet, "/api/approvals/"+a.ID.String(), nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp approvalEnvelope
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal(a.ID, resp.Approval.ID)
	})

	s.Run("lists pending approvals for a project", func() {
		projectID := id.NewProjectID()
		rec := s.do(http.MethodPost, "/api/approvals", map[string]any{
			"resource_type": "board",
			"resource_id":   "board-1",
			"project_id":    projectID.String(),
		})
		s.Require().Equal(http.StatusCreated, rec.Code)

		rec = s.do(http.MethodGet, fmt.Sprintf("/api/projects/%s/approvals/pending", projectID), nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp struct {
			Approvals []*approval.Approval `json:"approvals"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Len(resp.Approvals, 1)
	})

	s.Run("details endpoint works without a directory wired", func() {
		s.request("milestone-7")

		rec := s.do(http.MethodGet, "/api/approvals/details", nil)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp struct {
			Approvals []*approval.Detail `json:"approvals"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.NotEmpty(resp.Approvals)
	})
}
