package middleware

import (
	"log/slog"
	"net/http"

	id "trellis/pkg/domain"
	"trellis/pkg/requestcontext"
)

// Header names populated by the API gateway in front of this service.
// Session handling and member validation live there; this core trusts the
// resolved identity headers, per the deployment contract.
const (
	HeaderOrganizationID = "X-Organization-ID"
	HeaderMemberID       = "X-Member-ID"
)

// RequireIdentity extracts the organization scope and acting member from
// gateway headers and injects them into the request context. Requests without
// a resolvable identity are rejected before they reach any handler.
func RequireIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			orgID, err := id.ParseOrganizationID(r.Header.Get(HeaderOrganizationID))
			if err != nil {
				logger.WarnContext(ctx, "request missing organization scope",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "missing or invalid organization header")
				return
			}

			memberID, err := id.ParseMemberID(r.Header.Get(HeaderMemberID))
			if err != nil {
				logger.WarnContext(ctx, "request missing member identity",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "missing or invalid member header")
				return
			}

			ctx = requestcontext.WithOrganizationID(ctx, orgID)
			ctx = requestcontext.WithMemberID(ctx, memberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}
