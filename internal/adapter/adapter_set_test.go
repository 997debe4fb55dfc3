package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/circuitbreaker"
	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/types"
)

type stubAdapter struct {
	network types.Network
	err     error
	calls   int
}

func (s *stubAdapter) Network() types.Network { return s.network }
func (s *stubAdapter) ValidateAddress(address string) bool { return ValidateAddress(s.network, address) }

func (s *stubAdapter) Decimals(ctx context.Context, token string) (uint8, error) {
	s.calls++
	return 6, s.err
}

func (s *stubAdapter) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return big.NewInt(1), nil
}

func (s *stubAdapter) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error) {
	s.calls++
	return "0xabc", s.err
}

func TestChainAdapterSet_Get(t *testing.T) {
	set := NewChainAdapterSet(&stubAdapter{network: types.NetworkTRC20}, &stubAdapter{network: types.NetworkERC20})

	a, err := set.Get(types.NetworkERC20)
	require.NoError(t, err)
	assert.Equal(t, types.NetworkERC20, a.Network())

	_, err = set.Get(types.NetworkBEP20)
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)

	assert.Equal(t, []types.Network{types.NetworkERC20, types.NetworkTRC20}, set.Networks())
}

func TestValidateAddressByNetwork(t *testing.T) {
	assert.True(t, ValidateAddress(types.NetworkBEP20, testOwner))
	assert.False(t, ValidateAddress(types.NetworkTRC20, testOwner))
	assert.True(t, ValidateAddress(types.NetworkTRC20, tronUSDT))
	assert.False(t, ValidateAddress(types.NetworkERC20, tronUSDT))
}

func TestCanonicalAddress(t *testing.T) {
	lower := "0xdac17f958d2ee523a2206206994597c13d831ec7"
	upper := "0xDAC17F958D2EE523A2206206994597C13D831EC7"

	assert.Equal(t, testToken, CanonicalAddress(types.NetworkERC20, lower))
	assert.Equal(t, testToken, CanonicalAddress(types.NetworkBEP20, upper))
	assert.Equal(t, testToken, CanonicalAddress(types.NetworkERC20, testToken))
	assert.Equal(t, tronUSDT, CanonicalAddress(types.NetworkTRC20, tronUSDT))
}

func TestWithCircuitBreaker_OpensOnUnavailable(t *testing.T) {
	stub := &stubAdapter{
		network: types.NetworkBEP20,
		err:     unavailable(types.NetworkBEP20, "Allowance", errors.New("connection refused"), nil),
	}
	guarded := WithCircuitBreaker(stub, circuitbreaker.NewCircuitBreakerManager())

	for i := 0; i < 5; i++ {
		_, err := guarded.Allowance(context.Background(), testOwner, testSpender, testToken)
		require.ErrorIs(t, err, ErrChainUnavailable)
	}
	assert.Equal(t, 5, stub.calls)

	_, err := guarded.Allowance(context.Background(), testOwner, testSpender, testToken)
	assert.ErrorIs(t, err, ErrChainUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 5, stub.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChainBreakerOpen.WithLabelValues(string(types.NetworkBEP20))))
}

func TestWithCircuitBreaker_RejectionsDoNotTrip(t *testing.T) {
	stub := &stubAdapter{
		network: types.NetworkERC20,
		err:     rejected(types.NetworkERC20, "ExecuteRelayedTransfer", errors.New("execution reverted"), nil),
	}
	guarded := WithCircuitBreaker(stub, circuitbreaker.NewCircuitBreakerManager())

	for i := 0; i < 10; i++ {
		_, err := guarded.ExecuteRelayedTransfer(context.Background(), testSpender, testOwner, testRecipient, big.NewInt(1))
		require.ErrorIs(t, err, ErrTransactionRejected)
	}
	assert.Equal(t, 10, stub.calls)
}
