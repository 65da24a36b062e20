package quote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
	txcontext "assurly/pkg/platform/tx"
)

// PostgresStore persists quotes. The quote_number column carries a
// tenant-scoped unique index; pricing breakdown snapshots are stored as
// JSON since they are read back whole, never queried into.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) handle(ctx context.Context) dbHandle {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const quoteColumns = `
	id, tenant_id, quote_number, customer_id, product_id, coverage_amount,
	premium_frequency, base_premium, adjusted_premium, additional_premium,
	final_premium, annual_premium, currency, applied_factors,
	selected_features, quote_date, expiry_date, eligible, conditions,
	medical_exam_required, status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, q *Quote) error {
	factors, err := json.Marshal(q.AppliedFactors)
	if err != nil {
		return fmt.Errorf("marshal applied factors: %w", err)
	}
	features, err := json.Marshal(q.SelectedFeatureIDs)
	if err != nil {
		return fmt.Errorf("marshal selected features: %w", err)
	}
	conditions, err := json.Marshal(q.Conditions)
	if err != nil {
		return fmt.Errorf("marshal conditions: %w", err)
	}
	query := `INSERT INTO quotes (` + quoteColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err = s.handle(ctx).ExecContext(ctx, query,
		q.ID.String(), q.TenantID.String(), q.QuoteNumber, q.CustomerID.String(),
		q.ProductID.String(), q.CoverageAmount, string(q.PremiumFrequency),
		q.BasePremium, q.AdjustedPremium, q.AdditionalPremium, q.FinalPremium,
		q.AnnualPremium, q.Currency, factors, features, q.QuoteDate,
		q.ExpiryDate, q.Eligible, conditions, q.MedicalExamRequired,
		string(q.Status), q.CreatedAt, q.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("quote exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert quote: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID) (*Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE tenant_id = $1 AND id = $2`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), quoteID.String())
	return scanQuote(row)
}

func (s *PostgresStore) Execute(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID,
	validate func(*Quote) error, mutate func(*Quote)) (*Quote, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.executeLocked(ctx, tenantID, quoteID, validate, mutate)
	}
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin quote tx: %w", err)
	}
	defer func() { _ = dbtx.Rollback() }()

	q, err := s.executeLocked(txcontext.WithTx(ctx, dbtx), tenantID, quoteID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbtx.Commit(); err != nil {
		return nil, fmt.Errorf("commit quote tx: %w", err)
	}
	return q, nil
}

// executeLocked re-reads the row with FOR UPDATE inside the ambient
// transaction so validate sees the current status, not a stale read.
func (s *PostgresStore) executeLocked(ctx context.Context, tenantID id.TenantID, quoteID id.QuoteID,
	validate func(*Quote) error, mutate func(*Quote)) (*Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	row := s.handle(ctx).QueryRowContext(ctx, query, tenantID.String(), quoteID.String())
	q, err := scanQuote(row)
	if err != nil {
		return nil, err
	}
	if err := validate(q); err != nil {
		return nil, err
	}
	mutate(q)
	_, err = s.handle(ctx).ExecContext(ctx,
		`UPDATE quotes SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		tenantID.String(), quoteID.String(), string(q.Status), q.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, tenantID id.TenantID, today time.Time) (int64, error) {
	res, err := s.handle(ctx).ExecContext(ctx, `
		UPDATE quotes SET status = $3, updated_at = $4
		WHERE tenant_id = $1 AND status = $2 AND expiry_date < $4`,
		tenantID.String(), string(StatusActive), string(StatusExpired),
		time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()),
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale quotes: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale quotes: %w", err)
	}
	return affected, nil
}

func scanQuote(row *sql.Row) (*Quote, error) {
	var q Quote
	var quoteID, tenantID, customerID, productID, frequency, status string
	var coverage, base, adjusted, additional, final, annual string
	var factors, features, conditions []byte
	err := row.Scan(
		&quoteID, &tenantID, &q.QuoteNumber, &customerID, &productID,
		&coverage, &frequency, &base, &adjusted, &additional, &final,
		&annual, &q.Currency, &factors, &features, &q.QuoteDate,
		&q.ExpiryDate, &q.Eligible, &conditions, &q.MedicalExamRequired,
		&status, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan quote: %w", err)
	}
	if q.ID, err = id.ParseQuoteID(quoteID); err != nil {
		return nil, err
	}
	if q.TenantID, err = id.ParseTenantID(tenantID); err != nil {
		return nil, err
	}
	if q.CustomerID, err = id.ParseCustomerID(customerID); err != nil {
		return nil, err
	}
	if q.ProductID, err = id.ParseProductID(productID); err != nil {
		return nil, err
	}
	q.PremiumFrequency = id.PremiumFrequency(frequency)
	q.Status = Status(status)
	for dst, src := range map[*decimal.Decimal]string{
		&q.CoverageAmount: coverage, &q.BasePremium: base,
		&q.AdjustedPremium: adjusted, &q.AdditionalPremium: additional,
		&q.FinalPremium: final, &q.AnnualPremium: annual,
	} {
		if *dst, err = decimal.NewFromString(src); err != nil {
			return nil, fmt.Errorf("parse quote amount: %w", err)
		}
	}
	if err := json.Unmarshal(factors, &q.AppliedFactors); err != nil {
		return nil, fmt.Errorf("unmarshal applied factors: %w", err)
	}
	if err := json.Unmarshal(features, &q.SelectedFeatureIDs); err != nil {
		return nil, fmt.Errorf("unmarshal selected features: %w", err)
	}
	if err := json.Unmarshal(conditions, &q.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal conditions: %w", err)
	}
	return &q, nil
}
