// Package httptransport is the delivery shell around the lifecycle engine.
// Handlers decode, delegate to a service and encode; no business logic
// lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"assurly/internal/catalog"
	"assurly/internal/claims"
	"assurly/internal/contract"
	"assurly/internal/order"
	"assurly/internal/payment"
	"assurly/internal/platform/middleware"
	"assurly/internal/quote"
)

// Services bundles the engine's public surface for the router.
type Services struct {
	Catalog   *catalog.Service
	Quotes    *quote.Service
	Orders    *order.Service
	Contracts *contract.Service
	Payments  *payment.Service
	Claims    *claims.Service
}

// NewRouter wires all endpoints. Everything except health and metrics sits
// behind tenant authentication.
func NewRouter(s Services, validator middleware.TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(middleware.RequireTenant(validator, logger))
		(&catalogHandler{service: s.Catalog, logger: logger}).register(pr)
		(&quoteHandler{service: s.Quotes, logger: logger}).register(pr)
		(&orderHandler{service: s.Orders, logger: logger}).register(pr)
		(&contractHandler{service: s.Contracts, logger: logger}).register(pr)
		(&paymentHandler{service: s.Payments, logger: logger}).register(pr)
		(&claimsHandler{service: s.Claims, logger: logger}).register(pr)
	})
	return r
}
