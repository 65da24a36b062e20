package audit

import (
	"context"
	"log/slog"

	"assurly/pkg/platform/circuit"
)

// ResilientPublisher guards a Publisher with a circuit breaker. When the
// sink is down, events are dropped after a log line instead of stalling
// every lifecycle transition on a broker timeout.
type ResilientPublisher struct {
	next    Publisher
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// NewResilientPublisher wraps next. The circuit opens after five
// consecutive produce failures and closes on the first success.
func NewResilientPublisher(next Publisher, logger *slog.Logger) *ResilientPublisher {
	return &ResilientPublisher{
		next:    next,
		breaker: circuit.New("audit-publisher"),
		logger:  logger,
	}
}

func (p *ResilientPublisher) Emit(ctx context.Context, event Event) error {
	if p.breaker.IsOpen() {
		// Keep probing: the open circuit drops the payload but still
		// attempts the produce so recovery is noticed.
		if err := p.next.Emit(ctx, event); err != nil {
			p.breaker.RecordFailure()
			return nil
		}
		if _, change := p.breaker.RecordSuccess(); change.Closed {
			p.logger.Info("audit publisher recovered", "breaker", p.breaker.Name())
		}
		return nil
	}

	err := p.next.Emit(ctx, event)
	if err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.Error("audit publisher circuit opened, dropping events",
				"breaker", p.breaker.Name(), "error", err)
		}
		return err
	}
	p.breaker.RecordSuccess()
	return nil
}
