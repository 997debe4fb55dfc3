package adapter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/types"
)

func TestEncodeApprove_EVM(t *testing.T) {
	data, err := EncodeApprove(types.NetworkBEP20, testSpender, big.NewInt(42))
	require.NoError(t, err)

	method, err := erc20ABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", method.Name)

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(testSpender), args[0])
	assert.Equal(t, big.NewInt(42), args[1])
}

func TestEncodeApprove_TronHasNoSelector(t *testing.T) {
	spender, _ := tronAddressOf(t)

	data, err := EncodeApprove(types.NetworkTRC20, spender, big.NewInt(7))
	require.NoError(t, err)
	require.Len(t, data, 64)

	evm, err := toEVMAddress(spender)
	require.NoError(t, err)
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(data)
	require.NoError(t, err)
	assert.Equal(t, evm, args[0])
	assert.Equal(t, big.NewInt(7), args[1])
}

func TestEncodeApprove_InvalidSpender(t *testing.T) {
	_, err := EncodeApprove(types.NetworkERC20, "0x12", big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodeApprove(types.NetworkTRC20, testSpender, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidAddress)
}
