package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/types"
)

// guardedAdapter wraps a ChainAdapter with a circuit breaker. Only
// ErrChainUnavailable trips the breaker; reverts and bad input do not.
type guardedAdapter struct {
	inner ChainAdapter
	cb    *circuitbreaker.CircuitBreaker
}

// WithCircuitBreaker returns an adapter whose chain calls go through the
// breaker registered for the adapter's network
func WithCircuitBreaker(inner ChainAdapter, breakers *circuitbreaker.CircuitBreakerManager) ChainAdapter {
	cfg := circuitbreaker.DefaultConfig(string(inner.Network()))
	cfg.Timeout = 15 * time.Second
	cfg.IsFailure = func(err error) bool {
		return errors.Is(err, ErrChainUnavailable)
	}
	cfg.OnStateChange = reportBreakerState
	return &guardedAdapter{
		inner: inner,
		cb:    breakers.GetOrCreate(string(inner.Network()), cfg),
	}
}

func (g *guardedAdapter) Network() types.Network {
	return g.inner.Network()
}

func (g *guardedAdapter) ValidateAddress(address string) bool {
	return g.inner.ValidateAddress(address)
}

func (g *guardedAdapter) Decimals(ctx context.Context, token string) (uint8, error) {
	return guard(ctx, g, "Decimals", func(ctx context.Context) (uint8, error) {
		return g.inner.Decimals(ctx, token)
	})
}

func (g *guardedAdapter) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	return guard(ctx, g, "Allowance", func(ctx context.Context) (*big.Int, error) {
		return g.inner.Allowance(ctx, owner, spender, token)
	})
}

func (g *guardedAdapter) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error) {
	return guard(ctx, g, "ExecuteRelayedTransfer", func(ctx context.Context) (string, error) {
		return g.inner.ExecuteRelayedTransfer(ctx, spender, owner, recipient, rawAmount)
	})
}

func guard[T any](ctx context.Context, g *guardedAdapter, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var v T
	err := g.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		v, err = fn(ctx)
		return err
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		var zero T
		return zero, NewAdapterError(g.inner.Network(), op, fmt.Errorf("%w: %w", ErrChainUnavailable, err), nil)
	}
	return v, err
}

func reportBreakerState(network string, from, to circuitbreaker.State) {
	logger := logging.WithFields(map[string]interface{}{
		"network": network,
		"from":    from,
		"to":      to,
	})

	switch to {
	case circuitbreaker.StateOpen:
		metrics.ChainBreakerOpen.WithLabelValues(network).Set(1)
		logger.Warn("Chain node circuit opened")
	case circuitbreaker.StateHalfOpen:
		metrics.ChainBreakerOpen.WithLabelValues(network).Set(0.5)
		logger.Info("Probing chain node")
	default:
		metrics.ChainBreakerOpen.WithLabelValues(network).Set(0)
		logger.Info("Chain node circuit closed")
	}
}
