package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"assurly/internal/quote"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

type quoteHandler struct {
	service *quote.Service
	logger  *slog.Logger
}

func (h *quoteHandler) register(r chi.Router) {
	r.Post("/quotes", h.generate)
	r.Get("/quotes/{quoteID}", h.get)
	r.Post("/quotes/{quoteID}/convert", h.convert)
	r.Post("/quotes/{quoteID}/cancel", h.cancel)
	r.Post("/quotes/expire-stale", h.expireStale)
}

type generateQuoteRequest struct {
	CustomerID       string   `json:"customer_id"`
	ProductID        string   `json:"product_id"`
	CoverageAmount   string   `json:"coverage_amount"`
	PremiumFrequency string   `json:"premium_frequency"`
	Features         []string `json:"features"`
}

type quoteResponse struct {
	ID                  string   `json:"id"`
	QuoteNumber         string   `json:"quote_number"`
	CustomerID          string   `json:"customer_id"`
	ProductID           string   `json:"product_id"`
	CoverageAmount      string   `json:"coverage_amount"`
	PremiumFrequency    string   `json:"premium_frequency"`
	BasePremium         string   `json:"base_premium"`
	AdjustedPremium     string   `json:"adjusted_premium"`
	AdditionalPremium   string   `json:"additional_premium"`
	FinalPremium        string   `json:"final_premium"`
	AnnualPremium       string   `json:"annual_premium"`
	Currency            string   `json:"currency"`
	QuoteDate           string   `json:"quote_date"`
	ExpiryDate          string   `json:"expiry_date"`
	Conditions          []string `json:"conditions,omitempty"`
	MedicalExamRequired bool     `json:"medical_exam_required"`
	Status              string   `json:"status"`
}

func toQuoteResponse(q *quote.Quote) quoteResponse {
	return quoteResponse{
		ID:                  q.ID.String(),
		QuoteNumber:         q.QuoteNumber,
		CustomerID:          q.CustomerID.String(),
		ProductID:           q.ProductID.String(),
		CoverageAmount:      q.CoverageAmount.String(),
		PremiumFrequency:    string(q.PremiumFrequency),
		BasePremium:         q.BasePremium.String(),
		AdjustedPremium:     q.AdjustedPremium.String(),
		AdditionalPremium:   q.AdditionalPremium.String(),
		FinalPremium:        q.FinalPremium.String(),
		AnnualPremium:       q.AnnualPremium.String(),
		Currency:            q.Currency,
		QuoteDate:           q.QuoteDate.Format("2006-01-02"),
		ExpiryDate:          q.ExpiryDate.Format("2006-01-02"),
		Conditions:          q.Conditions,
		MedicalExamRequired: q.MedicalExamRequired,
		Status:              string(q.Status),
	}
}

func (h *quoteHandler) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req generateQuoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	customerID, err := id.ParseCustomerID(req.CustomerID)
	if err != nil {
		writeError(w, err)
		return
	}
	productID, err := id.ParseProductID(req.ProductID)
	if err != nil {
		writeError(w, err)
		return
	}
	coverage, err := parseAmount(req.CoverageAmount, "coverage_amount")
	if err != nil {
		writeError(w, err)
		return
	}
	frequency, err := id.ParsePremiumFrequency(req.PremiumFrequency)
	if err != nil {
		writeError(w, err)
		return
	}

	out, err := h.service.Generate(ctx, requestcontext.TenantID(ctx), quote.GenerateInput{
		CustomerID:         customerID,
		ProductID:          productID,
		CoverageAmount:     coverage,
		PremiumFrequency:   frequency,
		SelectedFeatureIDs: req.Features,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if out.Refusal != nil {
		// a refusal is a business outcome, not an error status
		writeJSON(w, http.StatusOK, map[string]any{
			"eligible": false,
			"reasons":  out.Refusal.Reasons,
		})
		return
	}
	writeJSON(w, http.StatusCreated, toQuoteResponse(out.Quote))
}

func (h *quoteHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quoteID, err := id.ParseQuoteID(chi.URLParam(r, "quoteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	q, err := h.service.Get(ctx, requestcontext.TenantID(ctx), quoteID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *quoteHandler) convert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quoteID, err := id.ParseQuoteID(chi.URLParam(r, "quoteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		PaymentMethod string `json:"payment_method"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.PaymentMethod == "" {
		writeError(w, dErrors.New(dErrors.CodeValidation, "payment_method is required"))
		return
	}
	res, err := h.service.ConvertToOrder(ctx, requestcontext.TenantID(ctx), quoteID, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"order_id":     res.OrderID.String(),
		"order_number": res.OrderNumber,
		"quote_status": string(res.Quote.Status),
	})
}

func (h *quoteHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	quoteID, err := id.ParseQuoteID(chi.URLParam(r, "quoteID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := h.service.Cancel(ctx, requestcontext.TenantID(ctx), quoteID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(q))
}

func (h *quoteHandler) expireStale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expired, err := h.service.ExpireStale(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired": expired})
}
