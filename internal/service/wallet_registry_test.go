package service

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/types"
)

func TestConnect_UpsertsOnePerAddressAndNetwork(t *testing.T) {
	repo := newMockWalletRepo()
	r := NewWalletRegistry(repo)
	ctx := context.Background()
	addr := "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	first, err := r.Connect(ctx, addr, "BEP-20", "metamask")
	require.NoError(t, err)
	second, err := r.Connect(ctx, addr, "BEP-20", "metamask")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	other, err := r.Connect(ctx, addr, "erc20", "")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.Equal(t, types.NetworkERC20, other.Network)
	assert.Equal(t, "unknown", other.WalletClient)
}

func TestConnect_EVMAddressCasingIsOneWallet(t *testing.T) {
	repo := newMockWalletRepo()
	r := NewWalletRegistry(repo)
	ctx := context.Background()
	checksummed := "0x52908400098527886E0F7030069857D2E4169EE7"

	lower, err := r.Connect(ctx, strings.ToLower(checksummed), "ERC-20", "metamask")
	require.NoError(t, err)
	upper, err := r.Connect(ctx, "0x"+strings.ToUpper(checksummed[2:]), "ERC-20", "metamask")
	require.NoError(t, err)
	mixed, err := r.Connect(ctx, checksummed, "ERC-20", "metamask")
	require.NoError(t, err)

	assert.Equal(t, lower.ID, upper.ID)
	assert.Equal(t, lower.ID, mixed.ID)
	assert.Equal(t, checksummed, lower.Address)

	n, err := r.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestConnect_Validation(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	tronAddr := address.PubkeyToAddress(key.PublicKey).String()

	tests := []struct {
		name    string
		address string
		network string
		wantErr string
	}{
		{name: "missing address", network: "ERC-20", wantErr: "address & network required"},
		{name: "missing network", address: ownerEVM, wantErr: "address & network required"},
		{name: "unknown network", address: ownerEVM, network: "SPL", wantErr: "network"},
		{name: "tron address on evm", address: tronAddr, network: "ERC-20", wantErr: "address"},
		{name: "evm address on tron", address: ownerEVM, network: "TRC-20", wantErr: "address"},
		{name: "short evm address", address: "0x1234", network: "BEP-20", wantErr: "address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewWalletRegistry(newMockWalletRepo())
			_, err := r.Connect(context.Background(), tt.address, tt.network, "")
			require.Error(t, err)
			assert.Equal(t, 400, apperrors.GetHTTPStatusCode(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	r := NewWalletRegistry(newMockWalletRepo())
	w, err := r.Connect(context.Background(), tronAddr, "TRC-20", "tronlink")
	require.NoError(t, err)
	assert.Equal(t, types.NetworkTRC20, w.Network)
}

func TestWalletRegistry_Get(t *testing.T) {
	r := NewWalletRegistry(newMockWalletRepo(wallet(1, types.NetworkERC20, ownerEVM)))

	w, err := r.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ownerEVM, w.Address)

	_, err = r.Get(context.Background(), 2)
	assert.Equal(t, 404, apperrors.GetHTTPStatusCode(err))
}
