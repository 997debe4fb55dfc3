package adapter

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/ratelimit"
	"github.com/usdt-market/internal/types"
)

// budgetedAdapter charges every chain call to the shared call budget of
// its network before forwarding it. The call priority comes from the
// context, see ratelimit.WithPriority.
type budgetedAdapter struct {
	inner   ChainAdapter
	budget  *ratelimit.CallBudget
	costs   *ratelimit.CostRegistry
	maxWait time.Duration
}

// WithCallBudget returns an adapter that waits up to maxWait for budget
// before each chain call. A refused call fails with ErrChainUnavailable.
func WithCallBudget(inner ChainAdapter, budget *ratelimit.CallBudget, costs *ratelimit.CostRegistry, maxWait time.Duration) ChainAdapter {
	if costs == nil {
		costs = ratelimit.NewCostRegistry(nil)
	}
	return &budgetedAdapter{inner: inner, budget: budget, costs: costs, maxWait: maxWait}
}

func (b *budgetedAdapter) Network() types.Network {
	return b.inner.Network()
}

func (b *budgetedAdapter) ValidateAddress(address string) bool {
	return b.inner.ValidateAddress(address)
}

func (b *budgetedAdapter) Decimals(ctx context.Context, token string) (uint8, error) {
	if err := b.charge(ctx, ratelimit.OpDecimals); err != nil {
		return 0, err
	}
	return b.inner.Decimals(ctx, token)
}

func (b *budgetedAdapter) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	if err := b.charge(ctx, ratelimit.OpAllowance); err != nil {
		return nil, err
	}
	return b.inner.Allowance(ctx, owner, spender, token)
}

func (b *budgetedAdapter) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error) {
	if err := b.charge(ctx, ratelimit.OpExecuteRelayedTransfer); err != nil {
		return "", err
	}
	return b.inner.ExecuteRelayedTransfer(ctx, spender, owner, recipient, rawAmount)
}

func (b *budgetedAdapter) charge(ctx context.Context, op string) error {
	network := b.inner.Network()
	priority := ratelimit.PriorityFromContext(ctx)

	err := b.budget.Wait(ctx, string(network), b.costs.Cost(op), priority, b.maxWait)
	if err == nil {
		return nil
	}

	metrics.RPCBudgetRefusals.WithLabelValues(string(network), priority.String()).Inc()
	return NewAdapterError(network, op, fmt.Errorf("%w: %w", ErrChainUnavailable, err), map[string]interface{}{
		"priority": priority.String(),
	})
}

// WithCallBudget wraps every adapter in the set with the call budget
func (s *ChainAdapterSet) WithCallBudget(budget *ratelimit.CallBudget, costs *ratelimit.CostRegistry, maxWait time.Duration) {
	for network, a := range s.adapters {
		s.adapters[network] = WithCallBudget(a, budget, costs, maxWait)
	}
}
