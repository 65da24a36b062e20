package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"assurly/internal/claims"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

type claimsHandler struct {
	service *claims.Service
	logger  *slog.Logger
}

func (h *claimsHandler) register(r chi.Router) {
	r.Post("/claims", h.submit)
	r.Get("/claims/statistics", h.statistics)
	r.Get("/claims/{claimID}", h.get)
	r.Post("/claims/{claimID}/adjuster", h.assignAdjuster)
	r.Post("/claims/{claimID}/status", h.updateStatus)
}

type submitClaimRequest struct {
	ContractID   string `json:"contract_id"`
	ClaimType    string `json:"claim_type"`
	Amount       string `json:"amount"`
	IncidentDate string `json:"incident_date"`
	Description  string `json:"description"`
}

type claimResponse struct {
	ID              string `json:"id"`
	ClaimNumber     string `json:"claim_number"`
	ContractID      string `json:"contract_id"`
	CustomerID      string `json:"customer_id"`
	ClaimType       string `json:"claim_type"`
	ClaimedAmount   string `json:"claimed_amount"`
	Currency        string `json:"currency"`
	IncidentDate    string `json:"incident_date"`
	ReportDate      string `json:"report_date"`
	Description     string `json:"description,omitempty"`
	AdjusterID      string `json:"adjuster_id,omitempty"`
	Status          string `json:"status"`
	ApprovalAmount  string `json:"approval_amount,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	Notes           string `json:"notes,omitempty"`
	PaymentDate     string `json:"payment_date,omitempty"`
}

func toClaimResponse(c *claims.Claim) claimResponse {
	resp := claimResponse{
		ID:              c.ID.String(),
		ClaimNumber:     c.ClaimNumber,
		ContractID:      c.ContractID.String(),
		CustomerID:      c.CustomerID.String(),
		ClaimType:       string(c.ClaimType),
		ClaimedAmount:   c.ClaimedAmount.String(),
		Currency:        c.Currency,
		IncidentDate:    c.IncidentDate.Format("2006-01-02"),
		ReportDate:      c.ReportDate.Format("2006-01-02"),
		Description:     c.Description,
		AdjusterID:      c.AdjusterID,
		Status:          string(c.Status),
		RejectionReason: c.RejectionReason,
		Notes:           c.Notes,
	}
	if c.ApprovalAmount != nil {
		resp.ApprovalAmount = c.ApprovalAmount.String()
	}
	if c.PaymentDate != nil {
		resp.PaymentDate = c.PaymentDate.Format("2006-01-02")
	}
	return resp
}

func (h *claimsHandler) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req submitClaimRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	contractID, err := id.ParseContractID(req.ContractID)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, err)
		return
	}
	incident, err := time.Parse("2006-01-02", req.IncidentDate)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "incident_date must be YYYY-MM-DD"))
		return
	}
	c, err := h.service.Submit(ctx, requestcontext.TenantID(ctx), claims.SubmitInput{
		ContractID:   contractID,
		ClaimType:    claims.ClaimType(req.ClaimType),
		Amount:       amount,
		IncidentDate: incident,
		Description:  req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClaimResponse(c))
}

func (h *claimsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.Get(ctx, requestcontext.TenantID(ctx), claimID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (h *claimsHandler) assignAdjuster(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		AdjusterID string `json:"adjuster_id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.AssignAdjuster(ctx, requestcontext.TenantID(ctx), claimID, req.AdjusterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (h *claimsHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status          string `json:"status"`
		Notes           string `json:"notes"`
		ApprovalAmount  string `json:"approval_amount"`
		RejectionReason string `json:"rejection_reason"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	decision := claims.Decision{
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	}
	if req.ApprovalAmount != "" {
		amount, err := decimal.NewFromString(req.ApprovalAmount)
		if err != nil {
			writeError(w, dErrors.New(dErrors.CodeValidation, "approval_amount is not a valid amount"))
			return
		}
		decision.ApprovalAmount = &amount
	}
	c, err := h.service.UpdateStatus(ctx, requestcontext.TenantID(ctx), claimID, claims.Status(req.Status), decision)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toClaimResponse(c))
}

func (h *claimsHandler) statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.service.Statistics(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	counts := make(map[string]int64, len(stats.CountsByStatus))
	for status, n := range stats.CountsByStatus {
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"counts_by_status":      counts,
		"total_claimed":         stats.TotalClaimed.String(),
		"total_approved":        stats.TotalApproved.String(),
		"approval_rate":         stats.ApprovalRate.String(),
		"reported_last_30_days": stats.ReportedLast30Days,
	})
}
