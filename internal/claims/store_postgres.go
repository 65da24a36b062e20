package claims

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
	txcontext "assurly/pkg/platform/tx"
)

// PostgresStore persists claims. claim_number carries a tenant-scoped
// unique index.
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

const claimColumns = `
	id, tenant_id, claim_number, contract_id, customer_id, claim_type,
	claimed_amount, currency, incident_date, report_date, description,
	adjuster_id, status, approval_amount, rejection_reason, notes,
	payment_date, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, c *Claim) error {
	query := `INSERT INTO claims (` + claimColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`
	_, err := s.handle(ctx).ExecContext(ctx, query,
		c.ID.String(), c.TenantID.String(), c.ClaimNumber, c.ContractID.String(),
		c.CustomerID.String(), string(c.ClaimType), c.ClaimedAmount, c.Currency,
		c.IncidentDate, c.ReportDate, c.Description, c.AdjusterID,
		string(c.Status), decimalPtr(c.ApprovalAmount), c.RejectionReason,
		c.Notes, c.PaymentDate, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("claim exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID) (*Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE tenant_id = $1 AND id = $2`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), claimID.String())
	return scanClaim(row)
}

func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID,
	validate func(*Claim) error, mutate func(*Claim)) (*Claim, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, claimID, validate, mutate)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	c, err := s.executeLocked(txcontext.WithTx(ctx, dbtx), tenantID, claimID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, tenantID id.TenantID, claimID id.ClaimID,
	validate func(*Claim) error, mutate func(*Claim)) (*Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), claimID.String())
	c, err := scanClaim(row)
	if err != nil {
		return nil, err
	}
	if err := validate(c); err != nil {
		return nil, err
	}
	mutate(c)
	_, err = s.handle(ctx).ExecContext(ctx, `
		UPDATE claims SET status = $3, adjuster_id = $4, approval_amount = $5,
			rejection_reason = $6, notes = $7, payment_date = $8, updated_at = $9
		WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), claimID.String(), string(c.Status), c.AdjusterID,
		decimalPtr(c.ApprovalAmount), c.RejectionReason, c.Notes,
		c.PaymentDate, c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update claim: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CountsByStatus(ctx context.Context, tenantID id.TenantID) (map[Status]int64, error) {
	rows, err := s.handle(ctx).QueryContext(ctx, `
		SELECT status, COUNT(*) FROM claims WHERE tenant_id = $1 GROUP BY status`,
		tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("count claims by status: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan claim counts: %w", err)
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

func (s *PostgresStore) Amounts(ctx context.Context, tenantID id.TenantID) (Amounts, error) {
	var claimed, approved string
	err := s.handle(ctx).QueryRowContext(ctx, `
		SELECT COALESCE(SUM(claimed_amount), 0), COALESCE(SUM(approval_amount), 0)
		FROM claims WHERE tenant_id = $1`,
		tenantID.String()).Scan(&claimed, &approved)
	if err != nil {
		return Amounts{}, fmt.Errorf("claim amounts: %w", err)
	}
	var amounts Amounts
	if amounts.TotalClaimed, err = decimal.NewFromString(claimed); err != nil {
		return Amounts{}, fmt.Errorf("parse claimed total: %w", err)
	}
	if amounts.TotalApproved, err = decimal.NewFromString(approved); err != nil {
		return Amounts{}, fmt.Errorf("parse approved total: %w", err)
	}
	return amounts, nil
}

func (s *PostgresStore) CountReportedSince(ctx context.Context, tenantID id.TenantID, since time.Time) (int64, error) {
	var count int64
	err := s.handle(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM claims WHERE tenant_id = $1 AND report_date >= $2`,
		tenantID.String(), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent claims: %w", err)
	}
	return count, nil
}

func scanClaim(row *sql.Row) (*Claim, error) {
	var c Claim
	var claimID, tenantID, contractID, customerID, claimType, status string
	var claimed string
	var approval sql.NullString
	err := row.Scan(
		&claimID, &tenantID, &c.ClaimNumber, &contractID, &customerID,
		&claimType, &claimed, &c.Currency, &c.IncidentDate, &c.ReportDate,
		&c.Description, &c.AdjusterID, &status, &approval, &c.RejectionReason,
		&c.Notes, &c.PaymentDate, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	if c.ID, err = id.ParseClaimID(claimID); err != nil {
		return nil, err
	}
	if c.TenantID, err = id.ParseTenantID(tenantID); err != nil {
		return nil, err
	}
	if c.ContractID, err = id.ParseContractID(contractID); err != nil {
		return nil, err
	}
	if c.CustomerID, err = id.ParseCustomerID(customerID); err != nil {
		return nil, err
	}
	c.ClaimType = ClaimType(claimType)
	c.Status = Status(status)
	if c.ClaimedAmount, err = decimal.NewFromString(claimed); err != nil {
		return nil, fmt.Errorf("parse claimed amount: %w", err)
	}
	if approval.Valid {
		d, err := decimal.NewFromString(approval.String)
		if err != nil {
			return nil, fmt.Errorf("parse approval amount: %w", err)
		}
		c.ApprovalAmount = &d
	}
	return &c, nil
}

func decimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return *d
}
