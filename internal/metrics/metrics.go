package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementsTotal counts settlement attempts by payment type and final
	// record status.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_settlements_total",
		Help: "Settlement attempts by payment type and outcome status.",
	}, []string{"type", "status"})

	// SettlementAmount observes settled amounts in currency major units.
	SettlementAmount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_settlement_amount",
		Help:    "Settled amount distribution by payment type.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"type"})

	// ConcurrencyConflicts counts version-conflict retries on escrow writes.
	ConcurrencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_write_conflicts_total",
		Help: "Optimistic-concurrency conflicts observed on escrow document writes.",
	})

	// GatewayFailures counts declined or errored gateway calls.
	GatewayFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "escrow_gateway_failures_total",
		Help: "Gateway calls that failed or were declined.",
	})
)
