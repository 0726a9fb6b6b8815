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

	"trellis/internal/audit"
	"trellis/internal/platform/middleware"
	"trellis/internal/sharelink"
	"trellis/internal/sharelink/service"
	"trellis/internal/sharelink/store/memory"
	id "trellis/pkg/domain"
)

type noopAuditor struct{}

func (noopAuditor) Emit(context.Context, audit.Event) {}

type ShareLinkHandlerSuite struct {
	suite.Suite
	store   *memory.InMemory
	router  *chi.Mux
	orgID   id.OrganizationID
	actorID id.MemberID
}

func TestShareLinkHandlerSuite(t *testing.T) {
	suite.Run(t, new(ShareLinkHandlerSuite))
}

func (s *ShareLinkHandlerSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	s.store = memory.NewInMemory()
	svc := service.New(s.store, noopAuditor{},
		service.WithLogger(log),
		service.WithBaseURL("https://app.example.com"),
	)
	h := New(svc, log)

	s.router = chi.NewRouter()
	s.router.Use(middleware.RequestTime, middleware.ClientMetadata)
	s.router.Group(h.RegisterPublic)
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireIdentity(log))
		h.RegisterManagement(r)
	})

	s.orgID = id.NewOrganizationID()
	s.actorID = id.NewMemberID()
}

func (s *ShareLinkHandlerSuite) do(method, path string, body any, identified bool) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if identified {
		req.Header.Set(middleware.HeaderOrganizationID, s.orgID.String())
		req.Header.Set(middleware.HeaderMemberID, s.actorID.String())
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *ShareLinkHandlerSuite) createLink() createResponse {
	rec := s.do(http.MethodPost, "/api/share-links", map[string]any{
		"resource_type": "project",
		"resource_id":   "project-1",
	}, true)
	s.Require().Equal(http.StatusCreated, rec.Code)

	var resp createResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *ShareLinkHandlerSuite) TestCreate() {
	s.Run("issues a link with token and share url", func() {
		resp := s.createLink()

		s.NotEmpty(resp.Token)
		s.Equal("https://app.example.com/share/"+resp.Token, resp.ShareURL)
		s.Require().NotNil(resp.ShareLink)
		s.True(resp.ShareLink.Permissions.ViewTasks)
	})

	s.Run("response body never contains the token hash", func() {
		rec := s.do(http.MethodPost, "/api/share-links", map[string]any{
			"resource_type": "board",
			"resource_id":   "board-1",
		}, true)
		s.Require().Equal(http.StatusCreated, rec.Code)

		var resp createResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		stored, err := s.store.FindByTokenHash(context.Background(), sharelink.DigestToken(resp.Token))
		s.Require().NoError(err)
		s.NotContains(rec.Body.String(), stored.TokenHash)
	})

	s.Run("rejects an invalid resource type", func() {
		rec := s.do(http.MethodPost, "/api/share-links", map[string]any{
			"resource_type": "wiki",
			"resource_id":   "w-1",
		}, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("rejects a malformed body", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/share-links", bytes.NewBufferString("{"))
		req.Header.Set(middleware.HeaderOrganizationID, s.orgID.String())
		req.Header.Set(middleware.HeaderMemberID, s.actorID.String())
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("requires identity headers", func() {
		rec := s.do(http.MethodPost, "/api/share-links", map[string]any{
			"resource_type": "project",
			"resource_id":   "project-1",
		}, false)
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *ShareLinkHandlerSuite) TestVisit() {
	s.Run("valid token renders the link and records the access", func() {
		created := s.createLink()

		rec := s.do(http.MethodGet, "/share/"+created.Token, nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp visitResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.True(resp.Valid)
		s.Require().NotNil(resp.ShareLink)

		stored, err := s.store.FindByID(context.Background(), s.orgID, created.ShareLink.ID)
		s.Require().NoError(err)
		s.Equal(int64(1), stored.AccessCount)
	})

	s.Run("unknown token reports not_found without recording", func() {
		rec := s.do(http.MethodGet, "/share/bogus-token", nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp visitResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.False(resp.Valid)
		s.Equal("not_found", resp.Error)
	})

	s.Run("revoked token reports revoked", func() {
		created := s.createLink()
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/share-links/%s/revoke", created.ShareLink.ID), nil, true)
		s.Require().Equal(http.StatusOK, rec.Code)

		rec = s.do(http.MethodGet, "/share/"+created.Token, nil, false)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp visitResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.False(resp.Valid)
		s.Equal("revoked", resp.Error)
	})
}

func (s *ShareLinkHandlerSuite) TestRevoke() {
	s.Run("revoke is idempotent over HTTP", func() {
		created := s.createLink()
		path := fmt.Sprintf("/api/share-links/%s/revoke", created.ShareLink.ID)

		first := s.do(http.MethodPost, path, nil, true)
		s.Require().Equal(http.StatusOK, first.Code)
		second := s.do(http.MethodPost, path, nil, true)
		s.Require().Equal(http.StatusOK, second.Code)
	})

	s.Run("unknown id is 404", func() {
		rec := s.do(http.MethodPost, fmt.Sprintf("/api/share-links/%s/revoke", id.NewShareLinkID()), nil, true)
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed id is 400", func() {
		rec := s.do(http.MethodPost, "/api/share-links/not-a-uuid/revoke", nil, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *ShareLinkHandlerSuite) TestList() {
	s.Run("lists links for a resource", func() {
		s.createLink()

		rec := s.do(http.MethodGet, "/api/share-links?resource_type=project&resource_id=project-1", nil, true)
		s.Require().Equal(http.StatusOK, rec.Code)

		var resp struct {
			ShareLinks []*sharelink.ShareLink `json:"share_links"`
		}
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.NotEmpty(resp.ShareLinks)
	})

	s.Run("missing resource filters are rejected", func() {
		rec := s.do(http.MethodGet, "/api/share-links", nil, true)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}
