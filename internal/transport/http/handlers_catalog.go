package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"assurly/internal/catalog"
	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/requestcontext"
)

type catalogHandler struct {
	service *catalog.Service
	logger  *slog.Logger
}

func (h *catalogHandler) register(r chi.Router) {
	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{customerID}", h.getCustomer)
	r.Put("/customers/{customerID}/kyc", h.setKYC)
	r.Put("/customers/{customerID}/contact", h.updateContact)
	r.Post("/products", h.createProduct)
	r.Get("/products/{productID}", h.getProduct)
}

type createCustomerRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Occupation  string `json:"occupation"`
	RiskProfile string `json:"risk_profile"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

type customerResponse struct {
	ID          string `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender,omitempty"`
	Occupation  string `json:"occupation,omitempty"`
	RiskProfile string `json:"risk_profile"`
	KYCStatus   string `json:"kyc_status"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
}

func toCustomerResponse(c *catalog.Customer) customerResponse {
	return customerResponse{
		ID:          c.ID.String(),
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		DateOfBirth: c.DateOfBirth.Format("2006-01-02"),
		Gender:      c.Gender,
		Occupation:  c.Occupation,
		RiskProfile: string(c.RiskProfile),
		KYCStatus:   string(c.KYCStatus),
		Email:       c.Email,
		Phone:       c.Phone,
		Address:     c.Address,
	}
}

func (h *catalogHandler) createCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createCustomerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		writeError(w, dErrors.New(dErrors.CodeValidation, "date_of_birth must be YYYY-MM-DD"))
		return
	}
	c, err := h.service.CreateCustomer(ctx, requestcontext.TenantID(ctx), catalog.CustomerInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: dob,
		Gender:      req.Gender,
		Occupation:  req.Occupation,
		RiskProfile: req.RiskProfile,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerResponse(c))
}

func (h *catalogHandler) getCustomer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, err := id.ParseCustomerID(chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.GetCustomer(ctx, requestcontext.TenantID(ctx), customerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *catalogHandler) setKYC(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, err := id.ParseCustomerID(chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.SetKYCStatus(ctx, requestcontext.TenantID(ctx), customerID, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

func (h *catalogHandler) updateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID, err := id.ParseCustomerID(chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.service.UpdateContact(ctx, requestcontext.TenantID(ctx), customerID, req.Email, req.Phone, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

type createProductRequest struct {
	Name                string           `json:"name"`
	ProductType         string           `json:"product_type"`
	Currency            string           `json:"currency"`
	MinCoverage         string           `json:"min_coverage"`
	MaxCoverage         string           `json:"max_coverage"`
	MinAge              int              `json:"min_age"`
	MaxAge              int              `json:"max_age"`
	RequiresMedicalExam bool             `json:"requires_medical_exam"`
	WaitingPeriodDays   int              `json:"waiting_period_days"`
	PolicyTermYears     int              `json:"policy_term_years"`
	Tiers               []tierRequest    `json:"tiers"`
	Factors             []factorRequest  `json:"factors"`
	Features            []featureRequest `json:"features"`
}

type tierRequest struct {
	ID             string `json:"id"`
	CoverageAmount string `json:"coverage_amount"`
	BasePremium    string `json:"base_premium"`
	Frequency      string `json:"frequency"`
}

type factorRequest struct {
	ID         string `json:"id"`
	FactorType string `json:"factor_type"`
	MinAge     int    `json:"min_age"`
	MaxAge     int    `json:"max_age"`
	MatchValue string `json:"match_value"`
	Multiplier string `json:"multiplier"`
}

type featureRequest struct {
	ID                          string `json:"id"`
	Name                        string `json:"name"`
	AdditionalPremiumPercentage string `json:"additional_premium_percentage"`
}

func (h *catalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProductRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := catalog.NewProduct(requestcontext.TenantID(ctx), req.Name,
		catalog.ProductType(req.ProductType), requestcontext.Now(ctx))
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Currency != "" {
		p.Currency = req.Currency
	}
	if req.MinAge > 0 {
		p.MinAge = req.MinAge
	}
	if req.MaxAge > 0 {
		p.MaxAge = req.MaxAge
	}
	p.RequiresMedicalExam = req.RequiresMedicalExam
	p.WaitingPeriodDays = req.WaitingPeriodDays
	p.PolicyTermYears = req.PolicyTermYears
	if p.MinCoverage, err = parseAmount(req.MinCoverage, "min_coverage"); err != nil {
		writeError(w, err)
		return
	}
	if p.MaxCoverage, err = parseAmount(req.MaxCoverage, "max_coverage"); err != nil {
		writeError(w, err)
		return
	}

	for _, t := range req.Tiers {
		coverage, err := parseAmount(t.CoverageAmount, "tier coverage_amount")
		if err != nil {
			writeError(w, err)
			return
		}
		premium, err := parseAmount(t.BasePremium, "tier base_premium")
		if err != nil {
			writeError(w, err)
			return
		}
		frequency, err := id.ParsePremiumFrequency(t.Frequency)
		if err != nil {
			writeError(w, err)
			return
		}
		p.Tiers = append(p.Tiers, catalog.PricingTier{
			ID:             t.ID,
			CoverageAmount: coverage,
			BasePremium:    premium,
			Frequency:      frequency,
			Currency:       p.Currency,
			Status:         catalog.TierActive,
		})
	}
	for _, f := range req.Factors {
		multiplier, err := parseAmount(f.Multiplier, "factor multiplier")
		if err != nil {
			writeError(w, err)
			return
		}
		p.Factors = append(p.Factors, catalog.PricingFactor{
			ID:         f.ID,
			FactorType: catalog.FactorType(f.FactorType),
			MinAge:     f.MinAge,
			MaxAge:     f.MaxAge,
			MatchValue: f.MatchValue,
			Multiplier: multiplier,
			Status:     catalog.TierActive,
		})
	}
	for _, f := range req.Features {
		pct, err := parseAmount(f.AdditionalPremiumPercentage, "feature percentage")
		if err != nil {
			writeError(w, err)
			return
		}
		p.Features = append(p.Features, catalog.ProductFeature{
			ID:                          f.ID,
			Name:                        f.Name,
			AdditionalPremiumPercentage: pct,
			Status:                      catalog.TierActive,
		})
	}

	created, err := h.service.CreateProduct(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": created.ID.String()})
}

func (h *catalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	productID, err := id.ParseProductID(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.service.GetProduct(ctx, requestcontext.TenantID(ctx), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func parseAmount(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation, "%s is not a valid amount", field)
	}
	return d, nil
}
