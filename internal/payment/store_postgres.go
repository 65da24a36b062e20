package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
	txcontext "assurly/pkg/platform/tx"
)

// PostgresStore persists payments. A unique index on
// (tenant_id, contract_id, due_date) backs idempotent schedule generation.
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

const paymentColumns = `
	id, tenant_id, contract_id, due_date, amount, currency, status,
	payment_date, method, transaction_id, late_fee, days_late,
	grace_period_used, created_at, updated_at`

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, p *Payment) (bool, error) {
	query := `INSERT INTO premium_payments (` + paymentColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (tenant_id, contract_id, due_date) DO NOTHING`
	res, err := s.handle(ctx).ExecContext(ctx, query,
		p.ID.String(), p.TenantID.String(), p.ContractID.String(), p.DueDate,
		p.Amount, p.Currency, string(p.Status), p.PaymentDate, p.Method,
		p.TransactionID, p.LateFee, p.DaysLate, p.GracePeriodUsed,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert payment: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM premium_payments WHERE tenant_id = $1 AND id = $2`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), paymentID.String())
	return scanPayment(row)
}

func (s *PostgresStore) ListByContract(ctx context.Context, tenantID id.TenantID, contractID id.ContractID) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM premium_payments
		WHERE tenant_id = $1 AND contract_id = $2 ORDER BY due_date ASC`
	rows, err := s.handle(ctx).QueryContext(ctx, query, tenantID.String(), contractID.String())
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []*Payment
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	validate func(*Payment) error, mutate func(*Payment)) (*Payment, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, paymentID, validate, mutate)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	p, err := s.executeLocked(txcontext.WithTx(ctx, dbtx), tenantID, paymentID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment tx: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, tenantID id.TenantID, paymentID id.PaymentID,
	validate func(*Payment) error, mutate func(*Payment)) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM premium_payments
		WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), paymentID.String())
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)
	_, err = s.handle(ctx).ExecContext(ctx, `
		UPDATE premium_payments SET status = $3, payment_date = $4, method = $5,
			transaction_id = $6, late_fee = $7, days_late = $8,
			grace_period_used = $9, updated_at = $10
		WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), paymentID.String(), string(p.Status), p.PaymentDate,
		p.Method, p.TransactionID, p.LateFee, p.DaysLate, p.GracePeriodUsed,
		p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) CollectedTotals(ctx context.Context, tenantID id.TenantID) (CollectedTotals, error) {
	var totals CollectedTotals
	var collected, fees string
	err := s.handle(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(amount) FILTER (WHERE status = $2), 0),
			COALESCE(SUM(late_fee) FILTER (WHERE status = $2), 0)
		FROM premium_payments WHERE tenant_id = $1`,
		tenantID.String(), string(StatusCompleted),
	).Scan(&totals.TotalPayments, &collected, &fees)
	if err != nil {
		return CollectedTotals{}, fmt.Errorf("collected totals: %w", err)
	}
	if totals.TotalCollected, err = decimal.NewFromString(collected); err != nil {
		return CollectedTotals{}, fmt.Errorf("parse collected total: %w", err)
	}
	if totals.TotalLateFees, err = decimal.NewFromString(fees); err != nil {
		return CollectedTotals{}, fmt.Errorf("parse late fee total: %w", err)
	}
	return totals, nil
}

func (s *PostgresStore) OverdueCount(ctx context.Context, tenantID id.TenantID, today time.Time) (int64, error) {
	var count int64
	err := s.handle(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM premium_payments
		WHERE tenant_id = $1 AND status = $2 AND due_date < $3`,
		tenantID.String(), string(StatusPending),
		time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("overdue count: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row *sql.Row) (*Payment, error) {
	p, err := scanPaymentRows(row)
	if err != nil && errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return p, err
}

func scanPaymentRows(row rowScanner) (*Payment, error) {
	var p Payment
	var paymentID, tenantID, contractID, status string
	var amount, lateFee string
	err := row.Scan(
		&paymentID, &tenantID, &contractID, &p.DueDate, &amount, &p.Currency,
		&status, &p.PaymentDate, &p.Method, &p.TransactionID, &lateFee,
		&p.DaysLate, &p.GracePeriodUsed, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if p.ID, err = id.ParsePaymentID(paymentID); err != nil {
		return nil, err
	}
	if p.TenantID, err = id.ParseTenantID(tenantID); err != nil {
		return nil, err
	}
	if p.ContractID, err = id.ParseContractID(contractID); err != nil {
		return nil, err
	}
	p.Status = Status(status)
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment amount: %w", err)
	}
	if p.LateFee, err = decimal.NewFromString(lateFee); err != nil {
		return nil, fmt.Errorf("parse late fee: %w", err)
	}
	return &p, nil
}
