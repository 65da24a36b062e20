package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors with displayable
// messages.
//
// These represent factual states about stored entities, not validation
// failures:
//   - ErrNotFound: entity does not exist in the tenant's scope
//   - ErrConflict: a unique constraint rejected the write
//   - ErrStaleState: the row's status changed between read and write
//   - ErrExhausted: a bounded retry loop ran out of attempts
//   - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrStaleState  = errors.New("stale state")
	ErrExhausted   = errors.New("exhausted")
	ErrUnavailable = errors.New("unavailable")
)
