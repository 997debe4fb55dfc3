// Package adapter hides the EVM and Tron RPC differences behind one interface.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/usdt-market/internal/types"
)

// ChainAdapter defines the capabilities the marketplace needs from a chain.
// Implementations apply their own per-call timeout.
type ChainAdapter interface {
	// Network returns the network this adapter serves
	Network() types.Network

	// ValidateAddress checks if address format is valid for this network
	ValidateAddress(address string) bool

	// Decimals reads the token's decimals. A node that returns no value
	// yields DefaultTokenDecimals.
	Decimals(ctx context.Context, token string) (uint8, error)

	// Allowance reads token.allowance(owner, spender) as a raw integer
	Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error)

	// ExecuteRelayedTransfer submits spender.executeTransfer(owner, recipient, rawAmount)
	// signed by the admin relayer key and returns the transaction hash.
	// The adapter does not deduplicate submissions.
	ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, rawAmount *big.Int) (string, error)
}

var (
	// ErrChainUnavailable indicates the RPC node failed, timed out or answered garbage
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrInvalidAddress indicates the address format is invalid
	ErrInvalidAddress = errors.New("invalid address format")

	// ErrSignerNotConfigured indicates no relayer key was configured for the family
	ErrSignerNotConfigured = errors.New("relayer signer not configured")

	// ErrTransactionRejected indicates the node refused or reverted the transaction
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrUnsupportedNetwork indicates no adapter is registered for a network
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// AdapterError wraps errors with additional context
type AdapterError struct {
	Network types.Network
	Op      string // Operation that failed (e.g., "Allowance", "ExecuteRelayedTransfer")
	Err     error
	Details map[string]interface{}
}

func (e *AdapterError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("chain adapter error [%s:%s]: %v (details: %+v)", e.Network, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("chain adapter error [%s:%s]: %v", e.Network, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError creates a new AdapterError
func NewAdapterError(network types.Network, op string, err error, details map[string]interface{}) *AdapterError {
	return &AdapterError{
		Network: network,
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// unavailable wraps a transport level failure so callers can match ErrChainUnavailable
func unavailable(network types.Network, op string, err error, details map[string]interface{}) *AdapterError {
	return NewAdapterError(network, op, fmt.Errorf("%w: %v", ErrChainUnavailable, err), details)
}

// rejected wraps a node refusal so callers can match ErrTransactionRejected
func rejected(network types.Network, op string, err error, details map[string]interface{}) *AdapterError {
	return NewAdapterError(network, op, fmt.Errorf("%w: %v", ErrTransactionRejected, err), details)
}
