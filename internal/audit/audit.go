// Package audit streams lifecycle transitions to an event sink. Persisted
// status history stays in the owning module's store; the audit stream is the
// cross-system trail (compliance, downstream consumers).
package audit

import (
	"context"
	"time"
)

// Event records one lifecycle transition.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	TenantID       string    `json:"tenant_id"`
	Entity         string    `json:"entity"`
	EntityID       string    `json:"entity_id"`
	DocumentNumber string    `json:"document_number,omitempty"`
	Action         string    `json:"action"`
	PreviousState  string    `json:"previous_state,omitempty"`
	NewState       string    `json:"new_state,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
}

// Publisher emits audit events. Emission is best-effort from the services'
// point of view: a failed emit is logged, never propagated into the
// business transaction.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// NopPublisher drops events. Used when no broker is configured and in unit
// tests that don't assert on the stream.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
