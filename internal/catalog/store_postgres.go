package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
	txcontext "assurly/pkg/platform/tx"
)

// PostgresCustomers persists customers in PostgreSQL. Tenant scoping happens
// in every WHERE clause; a wrong-tenant lookup is indistinguishable from a
// missing row.
type PostgresCustomers struct {
	db *sql.DB
}

func NewPostgresCustomers(db *sql.DB) *PostgresCustomers {
	return &PostgresCustomers{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func execer(ctx context.Context, db *sql.DB) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return db
}

func (s *PostgresCustomers) Create(ctx context.Context, c *Customer) error {
	const query = `
		INSERT INTO customers (
			id, tenant_id, first_name, last_name, date_of_birth, gender,
			occupation, risk_profile, kyc_status, email, phone, address,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`
	_, err := execer(ctx, s.db).ExecContext(ctx, query,
		c.ID.String(), c.TenantID.String(), c.FirstName, c.LastName,
		c.DateOfBirth, c.Gender, c.Occupation, string(c.RiskProfile),
		string(c.KYCStatus), c.Email, c.Phone, c.Address,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("customer exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

func (s *PostgresCustomers) FindByID(ctx context.Context, tenantID id.TenantID, customerID id.CustomerID) (*Customer, error) {
	const query = `
		SELECT id, tenant_id, first_name, last_name, date_of_birth, gender,
		       occupation, risk_profile, kyc_status, email, phone, address,
		       created_at, updated_at
		FROM customers
		WHERE tenant_id = $1 AND id = $2
	`
	row := execer(ctx, s.db).QueryRowContext(ctx, query, tenantID.String(), customerID.String())
	return scanCustomer(row)
}

func (s *PostgresCustomers) Update(ctx context.Context, c *Customer) error {
	const query = `
		UPDATE customers
		SET first_name = $3, last_name = $4, gender = $5, occupation = $6,
		    risk_profile = $7, kyc_status = $8, email = $9, phone = $10,
		    address = $11, updated_at = $12
		WHERE tenant_id = $1 AND id = $2
	`
	res, err := execer(ctx, s.db).ExecContext(ctx, query,
		c.TenantID.String(), c.ID.String(), c.FirstName, c.LastName,
		c.Gender, c.Occupation, string(c.RiskProfile), string(c.KYCStatus),
		c.Email, c.Phone, c.Address, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanCustomer(row *sql.Row) (*Customer, error) {
	var c Customer
	var customerID, tenantID, riskProfile, kycStatus string
	err := row.Scan(
		&customerID, &tenantID, &c.FirstName, &c.LastName, &c.DateOfBirth,
		&c.Gender, &c.Occupation, &riskProfile, &kycStatus, &c.Email,
		&c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	cid, err := id.ParseCustomerID(customerID)
	if err != nil {
		return nil, fmt.Errorf("scan customer id: %w", err)
	}
	tid, err := id.ParseTenantID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("scan customer tenant: %w", err)
	}
	c.ID = cid
	c.TenantID = tid
	c.RiskProfile = RiskProfile(riskProfile)
	c.KYCStatus = KYCStatus(kycStatus)
	return &c, nil
}

// PostgresProducts persists products and their pricing configuration.
type PostgresProducts struct {
	db *sql.DB
}

func NewPostgresProducts(db *sql.DB) *PostgresProducts {
	return &PostgresProducts{db: db}
}

func (s *PostgresProducts) Create(ctx context.Context, p *Product) error {
	const productQuery = `
		INSERT INTO products (
			id, tenant_id, name, product_type, currency, min_coverage,
			max_coverage, min_age, max_age, requires_medical_exam,
			waiting_period_days, policy_term_years, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`
	ex := execer(ctx, s.db)
	_, err := ex.ExecContext(ctx, productQuery,
		p.ID.String(), p.TenantID.String(), p.Name, string(p.ProductType),
		p.Currency, p.MinCoverage, p.MaxCoverage, p.MinAge, p.MaxAge,
		p.RequiresMedicalExam, p.WaitingPeriodDays, p.PolicyTermYears,
		string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("product exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert product: %w", err)
	}
	for _, t := range p.Tiers {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO product_tiers (id, product_id, coverage_amount, base_premium, frequency, currency, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			t.ID, p.ID.String(), t.CoverageAmount, t.BasePremium,
			string(t.Frequency), t.Currency, string(t.Status),
		)
		if err != nil {
			return fmt.Errorf("insert product tier: %w", err)
		}
	}
	for _, f := range p.Factors {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO product_factors (id, product_id, factor_type, min_age, max_age, match_value, multiplier, status)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			f.ID, p.ID.String(), string(f.FactorType), f.MinAge, f.MaxAge,
			f.MatchValue, f.Multiplier, string(f.Status),
		)
		if err != nil {
			return fmt.Errorf("insert product factor: %w", err)
		}
	}
	for _, f := range p.Features {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO product_features (id, product_id, name, additional_premium_percentage, status)
			VALUES ($1,$2,$3,$4,$5)`,
			f.ID, p.ID.String(), f.Name, f.AdditionalPremiumPercentage, string(f.Status),
		)
		if err != nil {
			return fmt.Errorf("insert product feature: %w", err)
		}
	}
	return nil
}

func (s *PostgresProducts) FindByID(ctx context.Context, tenantID id.TenantID, productID id.ProductID) (*Product, error) {
	const query = `
		SELECT id, tenant_id, name, product_type, currency, min_coverage,
		       max_coverage, min_age, max_age, requires_medical_exam,
		       waiting_period_days, policy_term_years, status, created_at, updated_at
		FROM products
		WHERE tenant_id = $1 AND id = $2
	`
	ex := execer(ctx, s.db)
	var p Product
	var pid, tid, productType, status string
	var minCoverage, maxCoverage string
	err := ex.QueryRowContext(ctx, query, tenantID.String(), productID.String()).Scan(
		&pid, &tid, &p.Name, &productType, &p.Currency, &minCoverage,
		&maxCoverage, &p.MinAge, &p.MaxAge, &p.RequiresMedicalExam,
		&p.WaitingPeriodDays, &p.PolicyTermYears, &status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan product: %w", err)
	}
	parsedID, err := id.ParseProductID(pid)
	if err != nil {
		return nil, fmt.Errorf("scan product id: %w", err)
	}
	parsedTenant, err := id.ParseTenantID(tid)
	if err != nil {
		return nil, fmt.Errorf("scan product tenant: %w", err)
	}
	p.ID = parsedID
	p.TenantID = parsedTenant
	p.ProductType = ProductType(productType)
	p.Status = ProductStatus(status)
	if p.MinCoverage, err = decimal.NewFromString(minCoverage); err != nil {
		return nil, fmt.Errorf("parse min coverage: %w", err)
	}
	if p.MaxCoverage, err = decimal.NewFromString(maxCoverage); err != nil {
		return nil, fmt.Errorf("parse max coverage: %w", err)
	}

	if p.Tiers, err = s.loadTiers(ctx, ex, productID); err != nil {
		return nil, err
	}
	if p.Factors, err = s.loadFactors(ctx, ex, productID); err != nil {
		return nil, err
	}
	if p.Features, err = s.loadFeatures(ctx, ex, productID); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresProducts) loadTiers(ctx context.Context, ex dbExecutor, productID id.ProductID) ([]PricingTier, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, coverage_amount, base_premium, frequency, currency, status
		FROM product_tiers WHERE product_id = $1
		ORDER BY coverage_amount`, productID.String())
	if err != nil {
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	defer rows.Close()
	var tiers []PricingTier
	for rows.Next() {
		var t PricingTier
		var coverage, premium, frequency, status string
		if err := rows.Scan(&t.ID, &coverage, &premium, &frequency, &t.Currency, &status); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		if t.CoverageAmount, err = decimal.NewFromString(coverage); err != nil {
			return nil, fmt.Errorf("parse tier coverage: %w", err)
		}
		if t.BasePremium, err = decimal.NewFromString(premium); err != nil {
			return nil, fmt.Errorf("parse tier premium: %w", err)
		}
		t.Frequency = id.PremiumFrequency(frequency)
		t.Status = TierStatus(status)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (s *PostgresProducts) loadFactors(ctx context.Context, ex dbExecutor, productID id.ProductID) ([]PricingFactor, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, factor_type, min_age, max_age, match_value, multiplier, status
		FROM product_factors WHERE product_id = $1`, productID.String())
	if err != nil {
		return nil, fmt.Errorf("load factors: %w", err)
	}
	defer rows.Close()
	var factors []PricingFactor
	for rows.Next() {
		var f PricingFactor
		var factorType, multiplier, status string
		if err := rows.Scan(&f.ID, &factorType, &f.MinAge, &f.MaxAge, &f.MatchValue, &multiplier, &status); err != nil {
			return nil, fmt.Errorf("scan factor: %w", err)
		}
		if f.Multiplier, err = decimal.NewFromString(multiplier); err != nil {
			return nil, fmt.Errorf("parse factor multiplier: %w", err)
		}
		f.FactorType = FactorType(factorType)
		f.Status = TierStatus(status)
		factors = append(factors, f)
	}
	return factors, rows.Err()
}

func (s *PostgresProducts) loadFeatures(ctx context.Context, ex dbExecutor, productID id.ProductID) ([]ProductFeature, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT id, name, additional_premium_percentage, status
		FROM product_features WHERE product_id = $1`, productID.String())
	if err != nil {
		return nil, fmt.Errorf("load features: %w", err)
	}
	defer rows.Close()
	var features []ProductFeature
	for rows.Next() {
		var f ProductFeature
		var percentage, status string
		if err := rows.Scan(&f.ID, &f.Name, &percentage, &status); err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		if f.AdditionalPremiumPercentage, err = decimal.NewFromString(percentage); err != nil {
			return nil, fmt.Errorf("parse feature percentage: %w", err)
		}
		f.Status = TierStatus(status)
		features = append(features, f)
	}
	return features, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
