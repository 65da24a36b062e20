package contract

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

// PostgresStore persists contracts across three tables: contracts,
// contract_beneficiaries and the append-only contract_status_history.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) handle(ctx context.Context) dbHandle {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const contractColumns = `
	id, tenant_id, policy_number, order_id, customer_id, product_id,
	coverage_amount, premium_amount, premium_frequency, currency,
	issue_date, effective_date, expiry_date, next_renewal_date,
	next_premium_due_date, last_premium_paid_date,
	cash_value, surrender_value, loan_value, status,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *Contract) error {
	query := `INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := s.handle(ctx).ExecContext(ctx, query,
		c.ID.String(), c.TenantID.String(), c.PolicyNumber, c.OrderID.String(),
		c.CustomerID.String(), c.ProductID.String(), c.CoverageAmount,
		c.PremiumAmount, string(c.PremiumFrequency), c.Currency, c.IssueDate,
		c.EffectiveDate, c.ExpiryDate, c.NextRenewalDate, c.NextPremiumDueDate,
		c.LastPremiumPaidDate, c.CashValue, c.SurrenderValue, c.LoanValue,
		string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("contract exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	if err := s.insertBeneficiaries(ctx, c, 0); err != nil {
		return err
	}
	return s.insertHistory(ctx, c, 0)
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) (*Contract, error) {
	return s.findWhere(ctx, tenantID, `id = $2`, contractID.String(), false)
}

func (s *PostgresStore) FindByPolicyNumber(ctx context.Context, tenantID id.TenantID, policyNumber string) (*Contract, error) {
	return s.findWhere(ctx, tenantID, `policy_number = $2`, policyNumber, false)
}

func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	validate func(*Contract) error, mutate func(*Contract)) (*Contract, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, contractID, validate, mutate)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin contract tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	c, err := s.executeLocked(txcontext.WithTx(ctx, dbtx), tenantID, contractID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit contract tx: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, tenantID id.TenantID, contractID id.ContractID,
	validate func(*Contract) error, mutate func(*Contract)) (*Contract, error) {
	c, err := s.findWhere(ctx, tenantID, `id = $2`, contractID.String(), true)
	if err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	beneficiariesBefore := len(c.Beneficiaries)
	historyBefore := len(c.History)
	mutate(c)

	_, err = s.handle(ctx).ExecContext(ctx, `
		UPDATE contracts SET status = $3, next_premium_due_date = $4,
			last_premium_paid_date = $5, next_renewal_date = $6,
			expiry_date = $7, cash_value = $8, surrender_value = $9,
			loan_value = $10, updated_at = $11
		WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), contractID.String(), string(c.Status),
		c.NextPremiumDueDate, c.LastPremiumPaidDate, c.NextRenewalDate,
		c.ExpiryDate, c.CashValue, c.SurrenderValue, c.LoanValue, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}
	if err := s.insertBeneficiaries(ctx, c, beneficiariesBefore); err != nil {
		return nil, err
	}
	if err := s.insertHistory(ctx, c, historyBefore); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) findWhere(ctx context.Context, tenantID id.TenantID, where, arg string, forUpdate bool) (*Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE tenant_id = $1 AND ` + where
	if forUpdate {
		query += ` FOR UPDATE`
	}
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), arg)
	c, err := scanContract(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadBeneficiaries(ctx, c); err != nil {
		return nil, err
	}
	if err := s.loadHistory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) loadBeneficiaries(ctx context.Context, c *Contract) error {
	rows, err := s.handle(ctx).QueryContext(ctx, `
		SELECT id, name, relationship, type, percentage, status, added_at
		FROM contract_beneficiaries
		WHERE tenant_id = $1 AND contract_id = $2
		ORDER BY added_at ASC`,
		c.TenantID.String(), c.ID.String())
	if err != nil {
		return fmt.Errorf("load beneficiaries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var b Beneficiary
		var btype, status, percentage string
		if err := rows.Scan(&b.ID, &b.Name, &b.Relationship, &btype, &percentage, &status, &b.AddedAt); err != nil {
			return fmt.Errorf("scan beneficiary: %w", err)
		}
		b.Type = BeneficiaryType(btype)
		b.Status = BeneficiaryStatus(status)
		if b.Percentage, err = decimal.NewFromString(percentage); err != nil {
			return fmt.Errorf("parse beneficiary percentage: %w", err)
		}
		c.Beneficiaries = append(c.Beneficiaries, b)
	}
	return rows.Err()
}

func (s *PostgresStore) loadHistory(ctx context.Context, c *Contract) error {
	rows, err := s.handle(ctx).QueryContext(ctx, `
		SELECT previous_status, new_status, actor, reason, changed_at
		FROM contract_status_history
		WHERE tenant_id = $1 AND contract_id = $2
		ORDER BY changed_at ASC, position ASC`,
		c.TenantID.String(), c.ID.String())
	if err != nil {
		return fmt.Errorf("load contract history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h StatusChange
		var prev, next string
		if err := rows.Scan(&prev, &next, &h.Actor, &h.Reason, &h.ChangedAt); err != nil {
			return fmt.Errorf("scan contract history: %w", err)
		}
		h.PreviousStatus = Status(prev)
		h.NewStatus = Status(next)
		c.History = append(c.History, h)
	}
	return rows.Err()
}

func (s *PostgresStore) insertBeneficiaries(ctx context.Context, c *Contract, from int) error {
	for i := from; i < len(c.Beneficiaries); i++ {
		b := c.Beneficiaries[i]
		_, err := s.handle(ctx).ExecContext(ctx, `
			INSERT INTO contract_beneficiaries
				(id, tenant_id, contract_id, name, relationship, type, percentage, status, added_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			b.ID, c.TenantID.String(), c.ID.String(), b.Name, b.Relationship,
			string(b.Type), b.Percentage, string(b.Status), b.AddedAt)
		if err != nil {
			return fmt.Errorf("insert beneficiary: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) insertHistory(ctx context.Context, c *Contract, from int) error {
	for i := from; i < len(c.History); i++ {
		h := c.History[i]
		_, err := s.handle(ctx).ExecContext(ctx, `
			INSERT INTO contract_status_history
				(tenant_id, contract_id, position, previous_status, new_status, actor, reason, changed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			c.TenantID.String(), c.ID.String(), i, string(h.PreviousStatus),
			string(h.NewStatus), h.Actor, h.Reason, h.ChangedAt)
		if err != nil {
			return fmt.Errorf("insert contract history: %w", err)
		}
	}
	return nil
}

func scanContract(row *sql.Row) (*Contract, error) {
	var c Contract
	var contractID, tenantID, orderID, customerID, productID, frequency, status string
	var coverage, premium string
	var cash, surrender, loan sql.NullString
	err := row.Scan(
		&contractID, &tenantID, &c.PolicyNumber, &orderID, &customerID,
		&productID, &coverage, &premium, &frequency, &c.Currency, &c.IssueDate,
		&c.EffectiveDate, &c.ExpiryDate, &c.NextRenewalDate,
		&c.NextPremiumDueDate, &c.LastPremiumPaidDate,
		&cash, &surrender, &loan, &status,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}
	if c.ID, err = id.ParseContractID(contractID); err != nil {
		return nil, err
	}
	if c.TenantID, err = id.ParseTenantID(tenantID); err != nil {
		return nil, err
	}
	if c.OrderID, err = id.ParseOrderID(orderID); err != nil {
		return nil, err
	}
	if c.CustomerID, err = id.ParseCustomerID(customerID); err != nil {
		return nil, err
	}
	if c.ProductID, err = id.ParseProductID(productID); err != nil {
		return nil, err
	}
	c.PremiumFrequency = id.PremiumFrequency(frequency)
	c.Status = Status(status)
	if c.CoverageAmount, err = decimal.NewFromString(coverage); err != nil {
		return nil, fmt.Errorf("parse coverage amount: %w", err)
	}
	if c.PremiumAmount, err = decimal.NewFromString(premium); err != nil {
		return nil, fmt.Errorf("parse premium amount: %w", err)
	}
	if c.CashValue, err = parseNullDecimal(cash, "cash value"); err != nil {
		return nil, err
	}
	if c.SurrenderValue, err = parseNullDecimal(surrender, "surrender value"); err != nil {
		return nil, err
	}
	if c.LoanValue, err = parseNullDecimal(loan, "loan value"); err != nil {
		return nil, err
	}
	return &c, nil
}

func parseNullDecimal(v sql.NullString, field string) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", field, err)
	}
	return &d, nil
}
