package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"assurly/internal/contract"
	id "assurly/pkg/domain"
	"assurly/pkg/requestcontext"
)

type contractHandler struct {
	service *contract.Service
	logger  *slog.Logger
}

func (h *contractHandler) register(r chi.Router) {
	r.Get("/contracts/{contractID}", h.get)
	r.Get("/contracts/by-policy/{policyNumber}", h.getByPolicyNumber)
	r.Get("/contracts/by-policy/{policyNumber}/renewal", h.renewalStatus)
	r.Post("/contracts/{contractID}/status", h.setStatus)
	r.Post("/contracts/{contractID}/beneficiaries", h.addBeneficiary)
}

type beneficiaryResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship,omitempty"`
	Type         string `json:"type"`
	Percentage   string `json:"percentage"`
	Status       string `json:"status"`
	AddedAt      string `json:"added_at"`
}

type contractResponse struct {
	ID                  string                `json:"id"`
	PolicyNumber        string                `json:"policy_number"`
	OrderID             string                `json:"order_id"`
	CustomerID          string                `json:"customer_id"`
	ProductID           string                `json:"product_id"`
	CoverageAmount      string                `json:"coverage_amount"`
	PremiumAmount       string                `json:"premium_amount"`
	PremiumFrequency    string                `json:"premium_frequency"`
	Currency            string                `json:"currency"`
	IssueDate           string                `json:"issue_date"`
	EffectiveDate       string                `json:"effective_date"`
	ExpiryDate          string                `json:"expiry_date"`
	NextRenewalDate     string                `json:"next_renewal_date"`
	NextPremiumDueDate  string                `json:"next_premium_due_date"`
	LastPremiumPaidDate string                `json:"last_premium_paid_date,omitempty"`
	CashValue           string                `json:"cash_value,omitempty"`
	SurrenderValue      string                `json:"surrender_value,omitempty"`
	LoanValue           string                `json:"loan_value,omitempty"`
	Status              string                `json:"status"`
	Beneficiaries       []beneficiaryResponse `json:"beneficiaries"`
	History             []historyResponse     `json:"history"`
}

func toContractResponse(c *contract.Contract) contractResponse {
	resp := contractResponse{
		ID:                 c.ID.String(),
		PolicyNumber:       c.PolicyNumber,
		OrderID:            c.OrderID.String(),
		CustomerID:         c.CustomerID.String(),
		ProductID:          c.ProductID.String(),
		CoverageAmount:     c.CoverageAmount.String(),
		PremiumAmount:      c.PremiumAmount.String(),
		PremiumFrequency:   string(c.PremiumFrequency),
		Currency:           c.Currency,
		IssueDate:          c.IssueDate.Format("2006-01-02"),
		EffectiveDate:      c.EffectiveDate.Format("2006-01-02"),
		ExpiryDate:         c.ExpiryDate.Format("2006-01-02"),
		NextRenewalDate:    c.NextRenewalDate.Format("2006-01-02"),
		NextPremiumDueDate: c.NextPremiumDueDate.Format("2006-01-02"),
		Status:             string(c.Status),
	}
	if c.LastPremiumPaidDate != nil {
		resp.LastPremiumPaidDate = c.LastPremiumPaidDate.Format("2006-01-02")
	}
	if c.CashValue != nil {
		resp.CashValue = c.CashValue.String()
	}
	if c.SurrenderValue != nil {
		resp.SurrenderValue = c.SurrenderValue.String()
	}
	if c.LoanValue != nil {
		resp.LoanValue = c.LoanValue.String()
	}
	for _, b := range c.Beneficiaries {
		resp.Beneficiaries = append(resp.Beneficiaries, beneficiaryResponse{
			ID:           b.ID,
			Name:         b.Name,
			Relationship: b.Relationship,
			Type:         string(b.Type),
			Percentage:   b.Percentage.String(),
			Status:       string(b.Status),
			AddedAt:      b.AddedAt.Format(time.RFC3339),
		})
	}
	for _, hst := range c.History {
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

func (h *contractHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.Get(ctx, requestcontext.TenantID(ctx), contractID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(c))
}

func (h *contractHandler) getByPolicyNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.service.GetByPolicyNumber(ctx, requestcontext.TenantID(ctx), chi.URLParam(r, "policyNumber"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(c))
}

func (h *contractHandler) renewalStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rs, err := h.service.RenewalStatus(ctx, requestcontext.TenantID(ctx), chi.URLParam(r, "policyNumber"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_number":      rs.PolicyNumber,
		"eligible":           rs.Eligible,
		"next_renewal_date":  rs.NextRenewalDate.Format("2006-01-02"),
		"expiry_date":        rs.ExpiryDate.Format("2006-01-02"),
		"required_documents": rs.RequiredDocuments,
	})
}

func (h *contractHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
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
	c, err := h.service.SetStatus(ctx, requestcontext.TenantID(ctx), contractID, contract.Status(req.Status), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractResponse(c))
}

func (h *contractHandler) addBeneficiary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	contractID, err := id.ParseContractID(chi.URLParam(r, "contractID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Name         string `json:"name"`
		Relationship string `json:"relationship"`
		Type         string `json:"type"`
		Percentage   string `json:"percentage"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	percentage, err := parseAmount(req.Percentage, "percentage")
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.AddBeneficiary(ctx, requestcontext.TenantID(ctx), contractID, contract.BeneficiaryInput{
		Name:         req.Name,
		Relationship: req.Relationship,
		Type:         contract.BeneficiaryType(req.Type),
		Percentage:   percentage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractResponse(c))
}
