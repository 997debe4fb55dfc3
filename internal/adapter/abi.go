package adapter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/usdt-market/internal/types"
)

// erc20ABIJSON is the minimal token surface the marketplace reads
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// spenderABIJSON is the relayer contract entry point
const spenderABIJSON = `[
	{"inputs":[{"name":"user","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"name":"executeTransfer","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Tron function selectors as sent to triggersmartcontract
const (
	decimalsSelector        = "decimals()"
	allowanceSelector       = "allowance(address,address)"
	executeTransferSelector = "executeTransfer(address,address,uint256)"

	// ApproveSelector is the approve signature wallets call on the token
	ApproveSelector = "approve(address,uint256)"
)

var (
	erc20ABI   abi.ABI
	spenderABI abi.ABI
)

func init() {
	var err error
	erc20ABI, err = abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse erc20 abi: %v", err))
	}
	spenderABI, err = abi.JSON(strings.NewReader(spenderABIJSON))
	if err != nil {
		panic(fmt.Sprintf("parse spender abi: %v", err))
	}
}

// ERC20ABI returns the parsed minimal token ABI
func ERC20ABI() abi.ABI {
	return erc20ABI
}

// SpenderABI returns the parsed relayer contract ABI
func SpenderABI() abi.ABI {
	return spenderABI
}

// PackApprove returns calldata for token.approve(spender, amount)
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return erc20ABI.Pack("approve", spender, amount)
}

// EncodeApprove returns the approve(spender, amount) call a user wallet signs.
// EVM networks get complete calldata. Tron gets the parameter block that
// goes with ApproveSelector, with the spender in 20 byte form.
func EncodeApprove(network types.Network, spender string, amount *big.Int) ([]byte, error) {
	if network.Family() == types.FamilyTron {
		addr, err := toEVMAddress(spender)
		if err != nil {
			return nil, fmt.Errorf("spender: %w", ErrInvalidAddress)
		}
		return packArgs(erc20ABI, "approve", addr, amount)
	}
	if !evmAddressPattern.MatchString(spender) {
		return nil, fmt.Errorf("spender: %w", ErrInvalidAddress)
	}
	return PackApprove(common.HexToAddress(spender), amount)
}

// packArgs ABI-encodes method arguments without the 4 byte selector,
// which is the parameter format Tron's HTTP API expects.
func packArgs(contract abi.ABI, method string, args ...interface{}) ([]byte, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %s not in abi", method)
	}
	return m.Inputs.Pack(args...)
}

// unpackUint unpacks a single unsigned integer output
func unpackUint(contract abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	switch v := out[0].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return big.NewInt(int64(v)), nil
	default:
		return nil, fmt.Errorf("unexpected %s output type %T", method, out[0])
	}
}

// decodeDecimals interprets a decimals() return value
func decodeDecimals(data []byte) (uint8, error) {
	if len(data) == 0 {
		return DefaultTokenDecimals, nil
	}
	v, err := unpackUint(erc20ABI, "decimals", data)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("decimals out of range: %s", v)
	}
	return uint8(v.Uint64()), nil
}
