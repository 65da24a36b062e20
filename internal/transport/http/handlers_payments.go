package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assurly/internal/payment"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

type paymentHandler struct {
	service *payment.Service
	logger  *slog.Logger
}

func (h *paymentHandler) register(r chi.Router) {
	r.Post("/contracts/{contractID}/payments/generate", h.generate)
	r.Get("/contracts/{contractID}/payments", h.listByContract)
	r.Get("/payments/statistics", h.statistics)
	r.Get("/payments/{paymentID}", h.get)
	r.Post("/payments/{paymentID}/settle", h.settle)
	r.Post("/payments/{paymentID}/fail", h.markFailed)
	r.Post("/payments/{paymentID}/refund", h.refund)
	r.Post("/payments/{paymentID}/cancel", h.cancel)
}

type paymentResponse struct {
	ID              string `json:"id"`
	ContractID      string `json:"contract_id"`
	DueDate         string `json:"due_date"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	PaymentDate     string `json:"payment_date,omitempty"`
	Method          string `json:"method,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
	LateFee         string `json:"late_fee"`
	DaysLate        int    `json:"days_late"`
	GracePeriodUsed bool   `json:"grace_period_used"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	resp := paymentResponse{
		ID:              p.ID.String(),
		ContractID:      p.ContractID.String(),
		DueDate:         p.DueDate.Format("2006-01-02"),
		Amount:          p.Amount.String(),
		Currency:        p.Currency,
		Status:          string(p.Status),
		Method:          p.Method,
		TransactionID:   p.TransactionID,
		LateFee:         p.LateFee.String(),
		DaysLate:        p.DaysLate,
		GracePeriodUsed: p.GracePeriodUsed,
	}
	if p.PaymentDate != nil {
		resp.PaymentDate = p.PaymentDate.Format("2006-01-02")
	}
	return resp
}

func toPaymentResponses(payments []*payment.Payment) []paymentResponse {
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	return out
}

func (h *paymentHandler) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		MonthsAhead int `json:"months_ahead"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	created, err := h.service.GenerateUpcoming(ctx, requestcontext.TenantID(ctx), contractID, req.MonthsAhead)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponses(created))
}

func (h *paymentHandler) listByContract(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, err)
		return
	}
	payments, err := h.service.ListByContract(ctx, requestcontext.TenantID(ctx), contractID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

func (h *paymentHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.Get(ctx, requestcontext.TenantID(ctx), paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		PaymentDate   string `json:"payment_date"`
		Method        string `json:"method"`
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	paymentDate := requestcontext.Now(ctx)
	if req.PaymentDate != "" {
		paymentDate, err = time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "payment_date must be YYYY-MM-DD"))
			return
		}
	}
	p, err := h.service.Settle(ctx, requestcontext.TenantID(ctx), paymentID, paymentDate, req.Method, req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) markFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.MarkFailed(ctx, requestcontext.TenantID(ctx), paymentID, req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.Refund(ctx, requestcontext.TenantID(ctx), paymentID, req.TransactionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	paymentID, err := id.ParsePaymentID(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.Cancel(ctx, requestcontext.TenantID(ctx), paymentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (h *paymentHandler) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Statistics(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_payments":  stats.TotalPayments,
		"total_collected": stats.TotalCollected.String(),
		"total_late_fees": stats.TotalLateFees.String(),
		"overdue_count":   stats.OverdueCount,
		"collection_rate": stats.CollectionRate.String(),
	})
}
