package adapter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/types"
)

var evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// gasHeadroomPercent is added on top of the node's gas estimate
const gasHeadroomPercent = 20

// EVMAdapter implements ChainAdapter for Ethereum and BNB Smart Chain
type EVMAdapter struct {
	network     types.Network
	pool        *RPCPool
	chainID     *big.Int
	key         *ecdsa.PrivateKey
	from        common.Address
	callTimeout time.Duration

	// sendMu serializes nonce assignment for the relayer key. nextNonce
	// covers nodes whose pending pool lags behind our own submissions.
	sendMu    sync.Mutex
	nextNonce uint64
}

// EVMAdapterConfig configures an EVMAdapter
type EVMAdapterConfig struct {
	Network types.Network
	// RPCURLs is a comma-separated list; later entries are failover endpoints
	RPCURLs string
	ChainID int64
	// PrivateKeyHex is the relayer key. Empty disables ExecuteRelayedTransfer.
	PrivateKeyHex string
	CallTimeout   time.Duration
}

// NewEVMAdapter creates a new EVM adapter
func NewEVMAdapter(cfg *EVMAdapterConfig) (*EVMAdapter, error) {
	if cfg.Network.Family() != types.FamilyEVM {
		return nil, fmt.Errorf("network %s is not an EVM network", cfg.Network)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("chain id must be positive for %s", cfg.Network)
	}

	pool, err := NewRPCPoolFromURLs(string(cfg.Network), cfg.RPCURLs, 0)
	if err != nil {
		return nil, fmt.Errorf("%s rpc: %w", cfg.Network, err)
	}

	a := &EVMAdapter{
		network:     cfg.Network,
		pool:        pool,
		chainID:     big.NewInt(cfg.ChainID),
		callTimeout: cfg.CallTimeout,
	}
	if a.callTimeout <= 0 {
		a.callTimeout = 8 * time.Second
	}

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid EVM relayer key: %w", err)
		}
		a.key = key
		a.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	logging.WithFields(map[string]interface{}{
		"network":   cfg.Network,
		"chainId":   cfg.ChainID,
		"endpoints": pool.EndpointCount(),
		"signer":    a.key != nil,
	}).Info("EVM adapter initialized")

	return a, nil
}

// Network returns the network this adapter serves
func (a *EVMAdapter) Network() types.Network {
	return a.network
}

// ValidateAddress checks if address format is valid for EVM chains
func (a *EVMAdapter) ValidateAddress(address string) bool {
	return evmAddressPattern.MatchString(address)
}

// RelayerAddress returns the address transactions are signed from
func (a *EVMAdapter) RelayerAddress() (common.Address, bool) {
	return a.from, a.key != nil
}

// Close releases the RPC connections
func (a *EVMAdapter) Close() {
	a.pool.Close()
}

// Decimals reads token.decimals()
func (a *EVMAdapter) Decimals(ctx context.Context, token string) (uint8, error) {
	if !a.ValidateAddress(token) {
		return 0, NewAdapterError(a.network, "Decimals", ErrInvalidAddress, map[string]interface{}{"token": token})
	}

	data, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, NewAdapterError(a.network, "Decimals", err, nil)
	}

	out, err := a.call(ctx, common.HexToAddress(token), data)
	if err != nil {
		return 0, unavailable(a.network, "Decimals", err, map[string]interface{}{"token": token})
	}

	decimals, err := decodeDecimals(out)
	if err != nil {
		return 0, unavailable(a.network, "Decimals", err, map[string]interface{}{"token": token})
	}
	return decimals, nil
}

// Allowance reads token.allowance(owner, spender)
func (a *EVMAdapter) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	for _, addr := range []string{owner, spender, token} {
		if !a.ValidateAddress(addr) {
			return nil, NewAdapterError(a.network, "Allowance", ErrInvalidAddress, map[string]interface{}{"address": addr})
		}
	}

	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, NewAdapterError(a.network, "Allowance", err, nil)
	}

	details := map[string]interface{}{"owner": owner, "token": token}
	out, err := a.call(ctx, common.HexToAddress(token), data)
	if err != nil {
		return nil, unavailable(a.network, "Allowance", err, details)
	}

	allowance, err := unpackUint(erc20ABI, "allowance", out)
	if err != nil {
		return nil, unavailable(a.network, "Allowance", err, details)
	}
	return allowance, nil
}

// ExecuteRelayedTransfer signs and submits spender.executeTransfer(owner, recipient, rawAmount)
func (a *EVMAdapter) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error) {
	const op = "ExecuteRelayedTransfer"

	if a.key == nil {
		return "", NewAdapterError(a.network, op, ErrSignerNotConfigured, nil)
	}
	for _, addr := range []string{spender, owner, recipient} {
		if !a.ValidateAddress(addr) {
			return "", NewAdapterError(a.network, op, ErrInvalidAddress, map[string]interface{}{"address": addr})
		}
	}
	if rawAmount == nil || rawAmount.Sign() <= 0 {
		return "", NewAdapterError(a.network, op, fmt.Errorf("amount must be positive"), nil)
	}

	spenderAddr := common.HexToAddress(spender)
	data, err := spenderABI.Pack("executeTransfer", common.HexToAddress(owner), common.HexToAddress(recipient), rawAmount)
	if err != nil {
		return "", NewAdapterError(a.network, op, err, nil)
	}

	client := a.pool.Client()
	details := map[string]interface{}{"owner": owner, "spender": spender}

	a.sendMu.Lock()
	defer a.sendMu.Unlock()

	nonce, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) (uint64, error) {
		return client.PendingNonceAt(ctx, a.from)
	})
	if err != nil {
		return "", unavailable(a.network, op, fmt.Errorf("pending nonce: %w", err), details)
	}
	nonce = max(nonce, a.nextNonce)

	gasPrice, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) (*big.Int, error) {
		return client.SuggestGasPrice(ctx)
	})
	if err != nil {
		return "", unavailable(a.network, op, fmt.Errorf("gas price: %w", err), details)
	}

	gas, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) (uint64, error) {
		return client.EstimateGas(ctx, ethereum.CallMsg{From: a.from, To: &spenderAddr, Data: data})
	})
	if err != nil {
		// A revert during estimation means the contract would refuse the transfer
		if isTransportError(err) {
			return "", unavailable(a.network, op, fmt.Errorf("estimate gas: %w", err), details)
		}
		return "", rejected(a.network, op, fmt.Errorf("estimate gas: %w", err), details)
	}
	gas += gas * gasHeadroomPercent / 100

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &spenderAddr,
		Value:    big.NewInt(0),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(a.chainID), a.key)
	if err != nil {
		return "", NewAdapterError(a.network, op, fmt.Errorf("sign: %w", err), nil)
	}

	_, err = withTimeout(ctx, a.callTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, client.SendTransaction(ctx, signedTx)
	})
	if err != nil {
		if isTransportError(err) {
			return "", unavailable(a.network, op, fmt.Errorf("send: %w", err), details)
		}
		return "", rejected(a.network, op, fmt.Errorf("send: %w", err), details)
	}

	a.nextNonce = nonce + 1

	txHash := signedTx.Hash().Hex()
	logging.WithFields(map[string]interface{}{
		"network": a.network,
		"txHash":  txHash,
		"nonce":   nonce,
		"gas":     gas,
	}).Info("Relayed transfer submitted")

	return txHash, nil
}

// call runs eth_call against the current endpoint and fails over once on
// transport errors
func (a *EVMAdapter) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}

	out, err := a.callOnce(ctx, a.pool.Client(), msg)
	if err == nil || !isTransportError(err) || ctx.Err() != nil {
		return out, err
	}

	if failErr := a.pool.Failover(); failErr != nil {
		return nil, err
	}
	return a.callOnce(ctx, a.pool.Client(), msg)
}

func (a *EVMAdapter) callOnce(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg) ([]byte, error) {
	return withTimeout(ctx, a.callTimeout, func(ctx context.Context) ([]byte, error) {
		return client.CallContract(ctx, msg, nil)
	})
}

// withTimeout runs fn under a per-call deadline
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("timeout after %v: %w", d, err)
	}
	return v, err
}
