package ratelimit

import (
	"sync"
)

// DefaultCallCost is charged for operations without a registered cost.
const DefaultCallCost = 1

// Chain operation names, matching the adapter method names.
const (
	OpDecimals               = "Decimals"
	OpAllowance              = "Allowance"
	OpExecuteRelayedTransfer = "ExecuteRelayedTransfer"
)

// CostExecuteRelayedTransfer covers nonce, gas price, estimate and send
// on EVM, or build, sign and broadcast on Tron.
const CostExecuteRelayedTransfer = 4

// CostRegistry maps chain operations to the number of budget units one
// call consumes. It is safe for concurrent use.
type CostRegistry struct {
	mu          sync.RWMutex
	costs       map[string]int
	defaultCost int
}

// NewCostRegistry creates a registry with the default costs. Overrides with
// a non-positive cost are ignored.
func NewCostRegistry(overrides map[string]int) *CostRegistry {
	costs := map[string]int{
		OpDecimals:               1,
		OpAllowance:              1,
		OpExecuteRelayedTransfer: CostExecuteRelayedTransfer,
	}
	for op, cost := range overrides {
		if cost > 0 {
			costs[op] = cost
		}
	}
	return &CostRegistry{costs: costs, defaultCost: DefaultCallCost}
}

// Cost returns the cost of one call of op.
func (r *CostRegistry) Cost(op string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cost, ok := r.costs[op]; ok {
		return cost
	}
	return r.defaultCost
}

// SetCost updates the cost of op. Non-positive costs are ignored.
func (r *CostRegistry) SetCost(op string, cost int) {
	if cost <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.costs[op] = cost
}
