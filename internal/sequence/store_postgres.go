package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "assurly/pkg/domain"
	"assurly/pkg/platform/sentinel"
	txcontext "assurly/pkg/platform/tx"
)

// PostgresStore persists per-scope counters in a document_sequences table:
//
//	CREATE TABLE document_sequences (
//	    tenant_id UUID        NOT NULL,
//	    prefix    TEXT        NOT NULL,
//	    seq_date  DATE        NOT NULL,
//	    counter   BIGINT      NOT NULL,
//	    PRIMARY KEY (tenant_id, prefix, seq_date)
//	);
//
// The increment-and-read happens in one statement, so two concurrent callers
// can never observe the same counter value.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) querier(ctx context.Context) rowQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Increment(ctx context.Context, tenantID id.TenantID, prefix string, day time.Time) (int64, error) {
	const query = `
		INSERT INTO document_sequences (tenant_id, prefix, seq_date, counter)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, prefix, seq_date)
		DO UPDATE SET counter = document_sequences.counter + 1
		RETURNING counter
	`
	var counter int64
	err := s.querier(ctx).QueryRowContext(ctx, query,
		tenantID.String(), prefix, day.Format("2006-01-02"),
	).Scan(&counter)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			// 40001 serialization_failure, 40P01 deadlock_detected: the
			// generator retries these.
			if pqErr.Code == "40001" || pqErr.Code == "40P01" {
				return 0, fmt.Errorf("sequence upsert collided: %w", sentinel.ErrConflict)
			}
		}
		return 0, fmt.Errorf("increment sequence %s/%s: %w", prefix, day.Format("20060102"), err)
	}
	return counter, nil
}
