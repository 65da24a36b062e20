// Package domainerrors provides coded errors for the lifecycle engine.
//
// Services return these so transports can translate outcomes into wire
// responses without inspecting error strings. Infrastructure layers return
// pkg/platform/sentinel errors instead; services wrap those into coded
// errors at the boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error.
type Code string

const (
	// CodeValidation marks malformed or out-of-range input.
	CodeValidation Code = "validation"
	// CodeInvalidInput marks input that fails parsing at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeNotFound marks a referenced entity that is missing or belongs to
	// another tenant. The two cases are deliberately indistinguishable.
	CodeNotFound Code = "not_found"
	// CodeInvalidTransition marks an illegal state-machine edge.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeStaleState marks a concurrent transition collision; callers may
	// retry once before surfacing it.
	CodeStaleState Code = "stale_state"
	// CodeExhausted marks an identifier sequence that ran out of retries.
	CodeExhausted Code = "exhausted"
	// CodeNoPricingTier marks a product with zero active pricing tiers.
	CodeNoPricingTier Code = "no_pricing_tier"
	// CodeConflict marks a uniqueness or invariant conflict.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a broken model invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeUnauthorized marks missing or invalid credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeTimeout marks a deadline expiry; the transaction rolls back.
	CodeTimeout Code = "timeout"
	// CodeInternal marks infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error with a displayable message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with a user-displayable message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		de = nil
	}
	return false
}

// CodeOf returns the outermost code carried by err, or CodeInternal when err
// is not a coded error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost displayable message, or a generic fallback.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// Is delegates to errors.Is so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }
