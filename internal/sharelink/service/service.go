// Package service implements the share link operations: issuing capability
// tokens, validating them, recording anonymous accesses, and revocation.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/mssola/useragent"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"trellis/internal/audit"
	"trellis/internal/platform/metrics"
	"trellis/internal/sharelink"
	id "trellis/pkg/domain"
	dErrors "trellis/pkg/domain-errors"
	"trellis/pkg/platform/sentinel"
	"trellis/pkg/requestcontext"
)

// Auditor records governance events. Emission never fails the caller; the
// concrete implementation is the audit publisher.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service orchestrates share link issuance, validation, and revocation.
type Service struct {
	store   sharelink.Store
	auditor Auditor
	logger  *slog.Logger
	metrics *metrics.Metrics
	baseURL string
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(s *Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics wires share link counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithBaseURL sets the public origin prepended to share URLs, e.g.
// "https://app.example.com". Empty yields a relative URL.
func WithBaseURL(baseURL string) Option {
	return func(s *Service) { s.baseURL = strings.TrimRight(baseURL, "/") }
}

// New constructs the share link service.
func New(store sharelink.Store, auditor Auditor, opts ...Option) *Service {
	s := &Service{
		store:   store,
		auditor: auditor,
		logger:  slog.Default(),
		tracer:  otel.Tracer("trellis/sharelink"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShareLink issues a new capability token for a resource. The raw token
// is present only in the returned result; storage holds its digest.
func (s *Service) CreateShareLink(ctx context.Context, params sharelink.CreateParams) (*sharelink.CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "sharelink.create")
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	token, err := sharelink.GenerateToken()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate share token")
	}

	now := requestcontext.Now(ctx)
	link := &sharelink.ShareLink{
		ID:                id.NewShareLinkID(),
		OrganizationID:    params.OrganizationID,
		CreatedByMemberID: params.CreatedByMemberID,
		ResourceType:      params.ResourceType,
		ResourceID:        params.ResourceID,
		TokenHash:         sharelink.DigestToken(token),
		Permissions:       sharelink.DefaultPermissions(),
		CreatedAt:         now,
	}
	if params.Permissions != nil {
		link.Permissions = *params.Permissions
	}
	if params.ExpiresInDays != nil {
		expiresAt := now.AddDate(0, 0, *params.ExpiresInDays)
		link.ExpiresAt = &expiresAt
	}

	if err := s.store.Create(ctx, link); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create share link")
	}
	s.logger.InfoContext(ctx, "share link created",
		"share_link_id", link.ID.String(),
		"organization_id", link.OrganizationID.String(),
		"resource_type", link.ResourceType.String(),
	)

	actor := params.CreatedByMemberID
	meta := map[string]any{
		"share_link_id": link.ID.String(),
		"permissions":   link.Permissions,
	}
	if link.ExpiresAt != nil {
		meta["expires_at"] = link.ExpiresAt
	}
	s.auditor.Emit(ctx, audit.Event{
		OrganizationID: link.OrganizationID,
		ActorMemberID:  &actor,
		Action:         audit.ActionShareCreated,
		ResourceType:   link.ResourceType,
		ResourceID:     link.ResourceID,
		Meta:           meta,
	})
	if s.metrics != nil {
		s.metrics.ShareLinksCreated.Inc()
	}

	return &sharelink.CreateResult{
		ShareLink: link,
		Token:     token,
		ShareURL:  s.baseURL + "/share/" + token,
	}, nil
}

// ValidateShareToken checks a presented token. It distinguishes not_found,
// revoked, and expired so the anonymous viewer can render correct messaging.
// Validation alone emits no audit event; it is not necessarily an access.
func (s *Service) ValidateShareToken(ctx context.Context, token string) (*sharelink.Validation, error) {
	ctx, span := s.tracer.Start(ctx, "sharelink.validate")
	defer span.End()

	link, err := s.store.FindByTokenHash(ctx, sharelink.DigestToken(token))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.invalid(sharelink.ReasonNotFound), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to validate share token")
	}

	// Revoked wins over expired: revocation is permanent, expiry is incidental.
	if link.IsRevoked() {
		return s.invalid(sharelink.ReasonRevoked), nil
	}
	if link.IsExpired(requestcontext.Now(ctx)) {
		return s.invalid(sharelink.ReasonExpired), nil
	}

	if s.metrics != nil {
		s.metrics.TokenValidations.WithLabelValues("valid").Inc()
	}
	return &sharelink.Validation{Valid: true, ShareLink: link}, nil
}

func (s *Service) invalid(reason sharelink.ValidationReason) *sharelink.Validation {
	if s.metrics != nil {
		s.metrics.TokenValidations.WithLabelValues(string(reason)).Inc()
	}
	return &sharelink.Validation{Valid: false, Reason: reason}
}

// RecordShareAccess counts one anonymous visit against a validated link. The
// increment is a single atomic store operation, safe under concurrent bursts
// against the same link.
func (s *Service) RecordShareAccess(ctx context.Context, link *sharelink.ShareLink, info sharelink.AccessInfo) error {
	ctx, span := s.tracer.Start(ctx, "sharelink.record_access")
	defer span.End()

	updated, err := s.store.RecordAccess(ctx, link.ID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "share link not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record share access")
	}

	meta := map[string]any{
		"share_link_id": updated.ID.String(),
		"access_count":  updated.AccessCount,
	}
	if info.IP != "" {
		meta["ip"] = info.IP
	}
	if info.UserAgent != "" {
		meta["user_agent"] = info.UserAgent
		ua := useragent.New(info.UserAgent)
		if name, version := ua.Browser(); name != "" {
			meta["browser"] = name + " " + version
		}
		if os := ua.OS(); os != "" {
			meta["os"] = os
		}
	}
	// ActorMemberID stays nil: the visitor is unauthenticated.
	s.auditor.Emit(ctx, audit.Event{
		OrganizationID: updated.OrganizationID,
		Action:         audit.ActionShareAccessed,
		ResourceType:   updated.ResourceType,
		ResourceID:     updated.ResourceID,
		Meta:           meta,
	})
	if s.metrics != nil {
		s.metrics.ShareLinkAccesses.Inc()
	}
	return nil
}

// RevokeShareLink permanently deactivates a link. Revoking an already-revoked
// link is a no-op that returns the link unchanged; the original revocation
// timestamp is never overwritten.
func (s *Service) RevokeShareLink(ctx context.Context, linkID id.ShareLinkID, orgID id.OrganizationID, actor id.MemberID) (*sharelink.ShareLink, error) {
	ctx, span := s.tracer.Start(ctx, "sharelink.revoke")
	defer span.End()

	link, revokedNow, err := s.store.Revoke(ctx, orgID, linkID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "share link not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke share link")
	}

	if revokedNow {
		s.auditor.Emit(ctx, audit.Event{
			OrganizationID: link.OrganizationID,
			ActorMemberID:  &actor,
			Action:         audit.ActionShareRevoked,
			ResourceType:   link.ResourceType,
			ResourceID:     link.ResourceID,
			Meta:           map[string]any{"share_link_id": link.ID.String()},
		})
		if s.metrics != nil {
			s.metrics.ShareLinksRevoked.Inc()
		}
	}
	return link, nil
}

// GetShareLinksByResource lists the active (non-revoked) links for a resource.
func (s *Service) GetShareLinksByResource(ctx context.Context, orgID id.OrganizationID, resourceType id.ResourceType, resourceID string) ([]*sharelink.ShareLink, error) {
	ctx, span := s.tracer.Start(ctx, "sharelink.list_by_resource")
	defer span.End()

	if !resourceType.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "resource type is required")
	}
	if resourceID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resource id is required")
	}
	links, err := s.store.ListByResource(ctx, orgID, resourceType, resourceID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list share links")
	}
	return links, nil
}
