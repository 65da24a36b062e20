package testutil

import (
	"net/http"
	"time"

	id "assurly/pkg/domain"
	"assurly/pkg/requestcontext"
)

// WithTenant stamps an authenticated tenant onto the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithTenant(req *http.Request, tenantID id.TenantID) *http.Request {
	return req.WithContext(requestcontext.WithTenantID(req.Context(), tenantID))
}

// WithActor stamps an acting user onto the request context.
func WithActor(req *http.Request, actor string) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}

// WithRequestTime pins the request-scoped clock so date arithmetic in
// handlers under test is deterministic.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
