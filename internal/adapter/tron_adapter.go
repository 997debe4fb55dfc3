package adapter

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/types"
)

// DefaultTronFeeLimit caps the energy a relayed transfer may burn, in sun
const DefaultTronFeeLimit int64 = 50_000_000

// TronAdapter implements ChainAdapter for TRC-20 USDT
type TronAdapter struct {
	client      *TronClient
	key         *ecdsa.PrivateKey
	from        string
	feeLimit    int64
	callTimeout time.Duration
}

// TronAdapterConfig configures a TronAdapter
type TronAdapterConfig struct {
	FullNodeURL string
	APIKey      string
	// PrivateKeyHex is the relayer key. Empty disables ExecuteRelayedTransfer.
	PrivateKeyHex string
	FeeLimit      int64
	CallTimeout   time.Duration
}

// NewTronAdapter creates a new Tron adapter
func NewTronAdapter(cfg *TronAdapterConfig) (*TronAdapter, error) {
	if cfg.FullNodeURL == "" {
		return nil, fmt.Errorf("tron full node url is required")
	}

	a := &TronAdapter{
		feeLimit:    cfg.FeeLimit,
		callTimeout: cfg.CallTimeout,
	}
	if a.feeLimit <= 0 {
		a.feeLimit = DefaultTronFeeLimit
	}
	if a.callTimeout <= 0 {
		a.callTimeout = 8 * time.Second
	}
	a.client = NewTronClient(cfg.FullNodeURL, cfg.APIKey, a.callTimeout)

	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid Tron relayer key: %w", err)
		}
		a.key = key
		a.from = address.PubkeyToAddress(key.PublicKey).String()
	}

	logging.WithFields(map[string]interface{}{
		"network":  types.NetworkTRC20,
		"feeLimit": a.feeLimit,
		"signer":   a.key != nil,
	}).Info("Tron adapter initialized")

	return a, nil
}

// Network returns the network this adapter serves
func (a *TronAdapter) Network() types.Network {
	return types.NetworkTRC20
}

// ValidateAddress checks for a base58check Tron address
func (a *TronAdapter) ValidateAddress(addr string) bool {
	return isTronAddress(addr)
}

// RelayerAddress returns the base58 address transactions are signed from
func (a *TronAdapter) RelayerAddress() (string, bool) {
	return a.from, a.key != nil
}

// Decimals reads token.decimals()
func (a *TronAdapter) Decimals(ctx context.Context, token string) (uint8, error) {
	if !isTronAddress(token) {
		return 0, NewAdapterError(types.NetworkTRC20, "Decimals", ErrInvalidAddress, map[string]interface{}{"token": token})
	}

	out, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) ([]byte, error) {
		return a.client.TriggerConstant(ctx, token, token, decimalsSelector, nil)
	})
	if err != nil {
		return 0, unavailable(types.NetworkTRC20, "Decimals", err, map[string]interface{}{"token": token})
	}

	decimals, err := decodeDecimals(out)
	if err != nil {
		return 0, unavailable(types.NetworkTRC20, "Decimals", err, map[string]interface{}{"token": token})
	}
	return decimals, nil
}

// Allowance reads token.allowance(owner, spender)
func (a *TronAdapter) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	ownerAddr, err := toEVMAddress(owner)
	if err != nil {
		return nil, NewAdapterError(types.NetworkTRC20, "Allowance", ErrInvalidAddress, map[string]interface{}{"address": owner})
	}
	spenderAddr, err := toEVMAddress(spender)
	if err != nil {
		return nil, NewAdapterError(types.NetworkTRC20, "Allowance", ErrInvalidAddress, map[string]interface{}{"address": spender})
	}
	if !isTronAddress(token) {
		return nil, NewAdapterError(types.NetworkTRC20, "Allowance", ErrInvalidAddress, map[string]interface{}{"address": token})
	}

	params, err := packArgs(erc20ABI, "allowance", ownerAddr, spenderAddr)
	if err != nil {
		return nil, NewAdapterError(types.NetworkTRC20, "Allowance", err, nil)
	}

	details := map[string]interface{}{"owner": owner, "token": token}
	out, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) ([]byte, error) {
		return a.client.TriggerConstant(ctx, owner, token, allowanceSelector, params)
	})
	if err != nil {
		return nil, unavailable(types.NetworkTRC20, "Allowance", err, details)
	}

	allowance, err := unpackUint(erc20ABI, "allowance", out)
	if err != nil {
		return nil, unavailable(types.NetworkTRC20, "Allowance", err, details)
	}
	return allowance, nil
}

// ExecuteRelayedTransfer builds, signs and broadcasts
// spender.executeTransfer(owner, recipient, rawAmount) under the fee limit
func (a *TronAdapter) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error) {
	const op = "ExecuteRelayedTransfer"

	if a.key == nil {
		return "", NewAdapterError(types.NetworkTRC20, op, ErrSignerNotConfigured, nil)
	}
	if !isTronAddress(spender) {
		return "", NewAdapterError(types.NetworkTRC20, op, ErrInvalidAddress, map[string]interface{}{"address": spender})
	}
	ownerAddr, err := toEVMAddress(owner)
	if err != nil {
		return "", NewAdapterError(types.NetworkTRC20, op, ErrInvalidAddress, map[string]interface{}{"address": owner})
	}
	recipientAddr, err := toEVMAddress(recipient)
	if err != nil {
		return "", NewAdapterError(types.NetworkTRC20, op, ErrInvalidAddress, map[string]interface{}{"address": recipient})
	}
	if rawAmount == nil || rawAmount.Sign() <= 0 {
		return "", NewAdapterError(types.NetworkTRC20, op, fmt.Errorf("amount must be positive"), nil)
	}

	params, err := packArgs(spenderABI, "executeTransfer", ownerAddr, recipientAddr, rawAmount)
	if err != nil {
		return "", NewAdapterError(types.NetworkTRC20, op, err, nil)
	}

	details := map[string]interface{}{"owner": owner, "spender": spender}

	unsigned, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.TriggerSmartContract(ctx, a.from, spender, executeTransferSelector, params, a.feeLimit)
	})
	if err != nil {
		return "", a.classify(op, err, details)
	}

	signed, txID, err := a.sign(unsigned)
	if err != nil {
		return "", NewAdapterError(types.NetworkTRC20, op, err, details)
	}

	result, err := withTimeout(ctx, a.callTimeout, func(ctx context.Context) (*BroadcastResult, error) {
		return a.client.Broadcast(ctx, signed)
	})
	if err != nil {
		return "", unavailable(types.NetworkTRC20, op, err, details)
	}
	if !result.Result {
		return "", rejected(types.NetworkTRC20, op, &nodeError{Code: result.Code, Message: result.Message}, details)
	}

	logging.WithFields(map[string]interface{}{
		"network":  types.NetworkTRC20,
		"txHash":   txID,
		"feeLimit": a.feeLimit,
	}).Info("Relayed transfer submitted")

	return txID, nil
}

// sign hashes raw_data, checks it against the node supplied txID and
// attaches the signature
func (a *TronAdapter) sign(unsigned json.RawMessage) (json.RawMessage, string, error) {
	var tx tronTransaction
	if err := json.Unmarshal(unsigned, &tx); err != nil {
		return nil, "", fmt.Errorf("decode unsigned transaction: %w", err)
	}

	rawData, err := hex.DecodeString(tx.RawDataHex)
	if err != nil || len(rawData) == 0 {
		return nil, "", fmt.Errorf("unsigned transaction has no raw_data_hex")
	}

	hash := sha256.Sum256(rawData)
	txID := hex.EncodeToString(hash[:])
	if !strings.EqualFold(txID, tx.TxID) {
		return nil, "", fmt.Errorf("txID mismatch: node sent %s, raw data hashes to %s", tx.TxID, txID)
	}

	signature, err := crypto.Sign(hash[:], a.key)
	if err != nil {
		return nil, "", fmt.Errorf("sign: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(unsigned, &fields); err != nil {
		return nil, "", fmt.Errorf("decode unsigned transaction: %w", err)
	}
	sigJSON, err := json.Marshal([]string{hex.EncodeToString(signature)})
	if err != nil {
		return nil, "", err
	}
	fields["signature"] = sigJSON

	signed, err := json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("encode signed transaction: %w", err)
	}
	return signed, txID, nil
}

// classify maps a trigger failure to rejected (node refused) or unavailable
func (a *TronAdapter) classify(op string, err error, details map[string]interface{}) error {
	var nerr *nodeError
	if errors.As(err, &nerr) {
		return rejected(types.NetworkTRC20, op, err, details)
	}
	return unavailable(types.NetworkTRC20, op, err, details)
}

func isTronAddress(s string) bool {
	if !strings.HasPrefix(s, "T") {
		return false
	}
	_, err := address.Base58ToAddress(s)
	return err == nil
}

// toEVMAddress strips Tron's 0x41 prefix so the address can be ABI encoded
func toEVMAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "T") {
		return common.Address{}, ErrInvalidAddress
	}
	addr, err := address.Base58ToAddress(s)
	if err != nil {
		return common.Address{}, err
	}
	b := []byte(addr)
	if len(b) != 21 {
		return common.Address{}, ErrInvalidAddress
	}
	return common.BytesToAddress(b[1:]), nil
}
