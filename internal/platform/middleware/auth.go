package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	jwttoken "assurly/internal/jwt_token"
	id "assurly/pkg/domain"
	"assurly/pkg/requestcontext"
)

// TokenValidator validates bearer tokens into claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.Claims, error)
}

// RequireTenant authenticates the request and injects tenant/actor identity
// and the request-scoped clock into context. Handlers downstream read the
// tenant through requestcontext and pass it explicitly into the engine.
func RequireTenant(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "rejected token", "error", err)
				unauthorized(w)
				return
			}
			tenantID, err := id.ParseTenantID(claims.TenantID)
			if err != nil {
				logger.WarnContext(ctx, "token carries malformed tenant", "error", err)
				unauthorized(w)
				return
			}

			ctx = requestcontext.WithTenantID(ctx, tenantID)
			ctx = requestcontext.WithActorID(ctx, claims.ActorID)
			ctx = requestcontext.WithTime(ctx, time.Now())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID assigns a request identifier for log correlation.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}
