// Package sequence issues human-readable document numbers of the form
// PREFIX-YYYYMMDD-NNNNNN, unique per tenant per prefix per day.
//
// Sequence values come from an atomic counter, never from counting existing
// rows: a read-then-insert scheme hands the same number to concurrent
// requests. Backends provide the atomic increment (Postgres upsert, Redis
// INCR, in-memory mutex); the generator adds formatting, bounded retry and
// exhaustion reporting.
package sequence

import (
	"context"
	"errors"
	"time"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
	"assurly/pkg/platform/sentinel"
)

// maxSequence is the largest value the 6-digit suffix can carry.
const maxSequence = 999999

// CounterStore atomically increments and returns the counter for one
// (tenant, prefix, day) scope. The first call for a scope returns 1.
type CounterStore interface {
	Increment(ctx context.Context, tenantID id.TenantID, prefix string, day time.Time) (int64, error)
}

// Generator formats document numbers from an atomic counter backend.
type Generator struct {
	counters   CounterStore
	maxRetries int
}

// New builds a Generator. maxRetries bounds how often a transient conflict
// (serialization failure on the counter row) is retried before the
// generator reports exhaustion.
func New(counters CounterStore, maxRetries int) *Generator {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Generator{counters: counters, maxRetries: maxRetries}
}

// Next returns the next document number for the given prefix, scoped to the
// tenant and the calendar day of scopeDate.
func (g *Generator) Next(ctx context.Context, tenantID id.TenantID, prefix string, scopeDate time.Time) (string, error) {
	if prefix == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document prefix is required")
	}
	if tenantID.IsNil() {
		return "", dErrors.New(dErrors.CodeValidation, "tenant is required")
	}

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "identifier generation aborted")
		}
		seq, err := g.counters.Increment(ctx, tenantID, prefix, scopeDate)
		if err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				lastErr = err
				continue
			}
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "increment document sequence")
		}
		if seq > maxSequence {
			return "", dErrors.Newf(dErrors.CodeExhausted,
				"document sequence exhausted for prefix %s", prefix)
		}
		return Format(prefix, scopeDate, seq), nil
	}
	return "", dErrors.Wrap(lastErr, dErrors.CodeExhausted,
		"identifier generation retries exceeded")
}

// Format renders PREFIX-YYYYMMDD-NNNNNN. Exposed for tests and backfills.
func Format(prefix string, day time.Time, seq int64) string {
	return prefix + "-" + day.Format("20060102") + "-" + pad6(seq)
}

func pad6(n int64) string {
	const digits = "0123456789"
	var buf [6]byte
	for i := 5; i >= 0; i-- {
		buf[i] = digits[n%10]
		n /= 10
	}
	return string(buf[:])
}
