package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assurly/internal/order"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

type orderHandler struct {
	service *order.Service
	logger  *slog.Logger
}

func (h *orderHandler) register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders/triage", h.triage)
	r.Get("/orders/{orderID}", h.get)
	r.Post("/orders/{orderID}/status", h.updateStatus)
	r.Post("/orders/{orderID}/approve", h.approve)
	r.Post("/orders/{orderID}/documents-received", h.documentsReceived)
	r.Post("/orders/{orderID}/medical-exam-completed", h.medicalExamCompleted)
	r.Get("/orders/{orderID}/attention", h.attention)
}

type createOrderRequest struct {
	CustomerID       string `json:"customer_id"`
	ProductID        string `json:"product_id"`
	CoverageAmount   string `json:"coverage_amount"`
	PremiumAmount    string `json:"premium_amount"`
	PremiumFrequency string `json:"premium_frequency"`
	PaymentMethod    string `json:"payment_method"`
	EffectiveDate    string `json:"effective_date,omitempty"`
}

type historyResponse struct {
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status"`
	Actor          string `json:"actor,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ChangedAt      string `json:"changed_at"`
}

type orderResponse struct {
	ID                   string            `json:"id"`
	OrderNumber          string            `json:"order_number"`
	QuoteID              string            `json:"quote_id,omitempty"`
	CustomerID           string            `json:"customer_id"`
	ProductID            string            `json:"product_id"`
	CoverageAmount       string            `json:"coverage_amount"`
	PremiumAmount        string            `json:"premium_amount"`
	PremiumFrequency     string            `json:"premium_frequency"`
	PaymentMethod        string            `json:"payment_method,omitempty"`
	ApplicationDate      string            `json:"application_date"`
	DocumentsReceived    bool              `json:"documents_received"`
	MedicalExamRequired  bool              `json:"medical_exam_required"`
	MedicalExamCompleted bool              `json:"medical_exam_completed"`
	Status               string            `json:"status"`
	ApprovalDate         string            `json:"approval_date,omitempty"`
	RejectionReason      string            `json:"rejection_reason,omitempty"`
	History              []historyResponse `json:"history"`
}

func toOrderResponse(o *order.Order) orderResponse {
	resp := orderResponse{
		ID:                   o.ID.String(),
		OrderNumber:          o.OrderNumber,
		CustomerID:           o.CustomerID.String(),
		ProductID:            o.ProductID.String(),
		CoverageAmount:       o.CoverageAmount.String(),
		PremiumAmount:        o.PremiumAmount.String(),
		PremiumFrequency:     string(o.PremiumFrequency),
		PaymentMethod:        o.PaymentMethod,
		ApplicationDate:      o.ApplicationDate.Format(time.RFC3339),
		DocumentsReceived:    o.DocumentsReceived,
		MedicalExamRequired:  o.MedicalExamRequired,
		MedicalExamCompleted: o.MedicalExamCompleted,
		Status:               string(o.Status),
		RejectionReason:      o.RejectionReason,
	}
	if !o.QuoteID.IsNil() {
		resp.QuoteID = o.QuoteID.String()
	}
	if o.ApprovalDate != nil {
		resp.ApprovalDate = o.ApprovalDate.Format(time.RFC3339)
	}
	for _, hst := range o.History {
		resp.History = append(resp.History, historyResponse{
			PreviousStatus: string(hst.PreviousStatus),
			NewStatus:      string(hst.NewStatus),
			Actor:          hst.Actor,
			Reason:         hst.Reason,
			ChangedAt:      hst.ChangedAt.Format(time.RFC3339),
		})
	}
	return resp
}

func (h *orderHandler) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createOrderRequest
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
	premium, err := parseAmount(req.PremiumAmount, "premium_amount")
	if err != nil {
		writeError(w, err)
		return
	}
	in := order.CreateInput{
		CustomerID:       customerID,
		ProductID:        productID,
		CoverageAmount:   coverage,
		PremiumAmount:    premium,
		PremiumFrequency: id.PremiumFrequency(req.PremiumFrequency),
		PaymentMethod:    req.PaymentMethod,
	}
	if req.EffectiveDate != "" {
		effective, err := time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "effective_date must be YYYY-MM-DD"))
			return
		}
		in.EffectiveDate = &effective
	}
	o, err := h.service.Create(ctx, requestcontext.TenantID(ctx), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *orderHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.service.Get(ctx, requestcontext.TenantID(ctx), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *orderHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	o, err := h.service.UpdateStatus(ctx, requestcontext.TenantID(ctx), orderID, order.Status(req.Status), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *orderHandler) approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	issued, err := h.service.Approve(ctx, requestcontext.TenantID(ctx), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"order_status":  string(issued.Order.Status),
		"contract_id":   issued.ContractID.String(),
		"policy_number": issued.PolicyNumber,
	})
}

func (h *orderHandler) documentsReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.service.MarkDocumentsReceived(ctx, requestcontext.TenantID(ctx), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *orderHandler) medicalExamCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.service.CompleteMedicalExam(ctx, requestcontext.TenantID(ctx), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *orderHandler) attention(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := id.ParseOrderID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	reasons, err := h.service.NeedsAttention(ctx, requestcontext.TenantID(ctx), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"needs_attention": len(reasons) > 0,
		"reasons":         reasons,
	})
}

func (h *orderHandler) triage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	triaged, err := h.service.Triage(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(triaged))
	for _, t := range triaged {
		out = append(out, map[string]any{
			"order_id":     t.Order.ID.String(),
			"order_number": t.Order.OrderNumber,
			"status":       string(t.Order.Status),
			"reasons":      t.Reasons,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
