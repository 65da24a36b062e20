package order

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

// PostgresStore persists orders in two tables: orders, plus an append-only
// order_status_history keyed by (order_id, changed_at).
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

const orderColumns = `
	id, tenant_id, order_number, quote_id, customer_id, product_id,
	coverage_amount, premium_amount, premium_frequency, payment_method,
	application_date, effective_date, documents_received,
	medical_exam_required, medical_exam_completed, status, approval_date,
	rejection_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, o *Order) error {
	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`
	_, err := s.handle(ctx).ExecContext(ctx, query,
		o.ID.String(), o.TenantID.String(), o.OrderNumber, nullableID(o.QuoteID.IsNil(), o.QuoteID.String()),
		o.CustomerID.String(), o.ProductID.String(), o.CoverageAmount, o.PremiumAmount,
		string(o.PremiumFrequency), o.PaymentMethod, o.ApplicationDate, o.EffectiveDate,
		o.DocumentsReceived, o.MedicalExamRequired, o.MedicalExamCompleted,
		string(o.Status), o.ApprovalDate, o.RejectionReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("order exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return s.insertHistory(ctx, o, 0)
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, orderID id.OrderID) (*Order, error) {
	return s.find(ctx, tenantID, orderID, false)
}

func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
	validate func(*Order) error, mutate func(*Order)) (*Order, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, orderID, validate, mutate)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin order tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	o, err := s.executeLocked(txcontext.WithTx(ctx, dbtx), tenantID, orderID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order tx: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, tenantID id.TenantID, orderID id.OrderID,
	validate func(*Order) error, mutate func(*Order)) (*Order, error) {
	o, err := s.find(ctx, tenantID, orderID, true)
	if err != nil {
		return nil, err
	}
	if err := validate(o); err != nil {
		return nil, err
	}
	historyBefore := len(o.History)
	mutate(o)

	_, err = s.handle(ctx).ExecContext(ctx, `
		UPDATE orders SET status = $3, payment_method = $4, documents_received = $5,
			medical_exam_completed = $6, approval_date = $7, rejection_reason = $8,
			updated_at = $9
		WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), orderID.String(), string(o.Status), o.PaymentMethod,
		o.DocumentsReceived, o.MedicalExamCompleted, o.ApprovalDate,
		o.RejectionReason, o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if err := s.insertHistory(ctx, o, historyBefore); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) ListPending(ctx context.Context, tenantID id.TenantID, _ time.Time) ([]*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE tenant_id = $1 AND status IN ($2, $3, $4)
		ORDER BY application_date ASC`
	rows, err := s.handle(ctx).QueryContext(ctx, query, tenantID.String(),
		string(StatusDraft), string(StatusSubmitted), string(StatusUnderReview))
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		if err := s.loadHistory(ctx, o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) find(ctx context.Context, tenantID id.TenantID, orderID id.OrderID, forUpdate bool) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := s.handle(ctx).QueryContext(ctx, query, tenantID.String(), orderID.String())
	if err != nil {
		return nil, fmt.Errorf("find order: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("find order: %w", err)
		}
		return nil, sentinel.ErrNotFound
	}
	o, err := scanOrder(rows)
	if err != nil {
		return nil, err
	}
	rows.Close()
	if err := s.loadHistory(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *PostgresStore) loadHistory(ctx context.Context, o *Order) error {
	rows, err := s.handle(ctx).QueryContext(ctx, `
		SELECT previous_status, new_status, actor, reason, changed_at
		FROM order_status_history
		WHERE tenant_id = $1 AND order_id = $2
		ORDER BY changed_at ASC, position ASC`,
		o.TenantID.String(), o.ID.String())
	if err != nil {
		return fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h StatusChange
		var prev, next string
		if err := rows.Scan(&prev, &next, &h.Actor, &h.Reason, &h.ChangedAt); err != nil {
			return fmt.Errorf("scan order history: %w", err)
		}
		h.PreviousStatus = Status(prev)
		h.NewStatus = Status(next)
		o.History = append(o.History, h)
	}
	return rows.Err()
}

// insertHistory persists the history rows appended since from. position
// disambiguates rows sharing one changed_at timestamp.
func (s *PostgresStore) insertHistory(ctx context.Context, o *Order, from int) error {
	for i := from; i < len(o.History); i++ {
		h := o.History[i]
		_, err := s.handle(ctx).ExecContext(ctx, `
			INSERT INTO order_status_history
				(tenant_id, order_id, position, previous_status, new_status, actor, reason, changed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			o.TenantID.String(), o.ID.String(), i, string(h.PreviousStatus),
			string(h.NewStatus), h.Actor, h.Reason, h.ChangedAt)
		if err != nil {
			return fmt.Errorf("insert order history: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var orderID, tenantID, customerID, productID, frequency, status string
	var quoteID sql.NullString
	var coverage, premium string
	err := row.Scan(
		&orderID, &tenantID, &o.OrderNumber, &quoteID, &customerID, &productID,
		&coverage, &premium, &frequency, &o.PaymentMethod, &o.ApplicationDate,
		&o.EffectiveDate, &o.DocumentsReceived, &o.MedicalExamRequired,
		&o.MedicalExamCompleted, &status, &o.ApprovalDate, &o.RejectionReason,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if o.ID, err = id.ParseOrderID(orderID); err != nil {
		return nil, err
	}
	if o.TenantID, err = id.ParseTenantID(tenantID); err != nil {
		return nil, err
	}
	if quoteID.Valid {
		if o.QuoteID, err = id.ParseQuoteID(quoteID.String); err != nil {
			return nil, err
		}
	}
	if o.CustomerID, err = id.ParseCustomerID(customerID); err != nil {
		return nil, err
	}
	if o.ProductID, err = id.ParseProductID(productID); err != nil {
		return nil, err
	}
	o.PremiumFrequency = id.PremiumFrequency(frequency)
	o.Status = Status(status)
	if o.CoverageAmount, err = decimal.NewFromString(coverage); err != nil {
		return nil, fmt.Errorf("parse coverage amount: %w", err)
	}
	if o.PremiumAmount, err = decimal.NewFromString(premium); err != nil {
		return nil, fmt.Errorf("parse premium amount: %w", err)
	}
	return &o, nil
}

func nullableID(isNil bool, s string) any {
	if isNil {
		return nil
	}
	return s
}
