// Package metrics exposes Prometheus collectors for allowance checks and payouts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are partitioned by network label (ERC-20, BEP-20, TRC-20).

var (
	// Verifier
	AllowanceChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usdt_market",
		Subsystem: "verifier",
		Name:      "checks_total",
		Help:      "Total allowance verifications by resulting wallet status",
	}, []string{"network", "status"})

	AllowanceCheckLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "usdt_market",
		Subsystem: "verifier",
		Name:      "check_duration_seconds",
		Help:      "Duration of one wallet verification (decimals + allowance)",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"network"})

	// Payouts
	PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usdt_market",
		Subsystem: "payout",
		Name:      "attempts_total",
		Help:      "Total payout attempts by outcome",
	}, []string{"network", "outcome"})

	PayoutLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "usdt_market",
		Subsystem: "payout",
		Name:      "duration_seconds",
		Help:      "Payout execution duration from request to submission",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"network"})

	// Watcher
	WatcherApprovedWallets = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "usdt_market",
		Subsystem: "watcher",
		Name:      "approved_wallets",
		Help:      "Wallets holding a positive allowance at the last watcher pass",
	}, []string{"network"})

	WatcherApprovedVolume = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "usdt_market",
		Subsystem: "watcher",
		Name:      "approved_volume_usdt",
		Help:      "Sum of approved USDT at the last watcher pass",
	}, []string{"network"})

	WatcherPassErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "usdt_market",
		Subsystem: "watcher",
		Name:      "pass_errors_total",
		Help:      "Watcher passes that failed to list wallets or write history",
	})

	// Chain nodes
	ChainBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "usdt_market",
		Subsystem: "chain",
		Name:      "breaker_open",
		Help:      "1 while the network's circuit breaker refuses calls, 0.5 while probing",
	}, []string{"network"})

	// RPC budget
	RPCBudgetRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usdt_market",
		Subsystem: "rpc_budget",
		Name:      "refusals_total",
		Help:      "Chain calls refused because the shared call budget was exhausted",
	}, []string{"network", "priority"})

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "usdt_market",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code",
	}, []string{"route", "code"})
)

// Payout outcome labels
const (
	OutcomeSubmitted    = "submitted"
	OutcomeRejected     = "rejected"
	OutcomeUnavailable  = "unavailable"
	OutcomeInsufficient = "insufficient"
	OutcomeBusy         = "busy"
	OutcomeReplayed     = "replayed"
	OutcomeError        = "error"
)
