package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the lifecycle engine. Counters track
// throughput per module; histograms cover the latency-sensitive paths.
type Metrics struct {
	QuotesGenerated    prometheus.Counter
	QuotesRefused      prometheus.Counter
	OrdersTransitioned *prometheus.CounterVec
	ContractsIssued    prometheus.Counter
	PaymentsSettled    prometheus.Counter
	ClaimsSubmitted    prometheus.Counter
	PricingDuration    prometheus.Histogram
	SequenceRetries    prometheus.Counter
}

// New registers and returns all engine metrics.
func New() *Metrics {
	return &Metrics{
		QuotesGenerated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_quotes_generated_total",
			Help: "Total number of quotes generated",
		}),
		QuotesRefused: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_quotes_refused_total",
			Help: "Total number of quote requests refused on eligibility",
		}),
		OrdersTransitioned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assurly_orders_transitioned_total",
			Help: "Order status transitions by target status",
		}, []string{"status"}),
		ContractsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_contracts_issued_total",
			Help: "Total number of contracts issued",
		}),
		PaymentsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_payments_settled_total",
			Help: "Total number of premium payments settled",
		}),
		ClaimsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_claims_submitted_total",
			Help: "Total number of claims submitted",
		}),
		PricingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assurly_pricing_duration_seconds",
			Help:    "Duration of premium pricing computations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		SequenceRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assurly_sequence_retries_total",
			Help: "Identifier generation retries after unique-constraint collisions",
		}),
	}
}

// ObservePricing records the duration of one pricing computation.
// Call with time.Now() captured at the start of the operation.
func (m *Metrics) ObservePricing(start time.Time) {
	m.PricingDuration.Observe(time.Since(start).Seconds())
}
