// Package types provides common type definitions for the USDT marketplace backend.
package types

import (
	"fmt"
	"strings"
)

// Network identifies the token standard a wallet approved USDT on
type Network string

const (
	// NetworkERC20 represents USDT on Ethereum mainnet
	NetworkERC20 Network = "ERC-20"
	// NetworkBEP20 represents USDT on BNB Smart Chain
	NetworkBEP20 Network = "BEP-20"
	// NetworkTRC20 represents USDT on Tron
	NetworkTRC20 Network = "TRC-20"
)

// AllNetworks lists every supported network in display order
var AllNetworks = []Network{NetworkERC20, NetworkBEP20, NetworkTRC20}

// Family groups networks that share an address format and signer
type Family string

const (
	// FamilyEVM covers Ethereum and BNB Smart Chain
	FamilyEVM Family = "evm"
	// FamilyTron covers Tron
	FamilyTron Family = "tron"
)

// ParseNetwork parses a network label. Matching ignores case and surrounding space.
func ParseNetwork(s string) (Network, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERC-20", "ERC20":
		return NetworkERC20, nil
	case "BEP-20", "BEP20":
		return NetworkBEP20, nil
	case "TRC-20", "TRC20":
		return NetworkTRC20, nil
	default:
		return "", fmt.Errorf("unsupported network: %q", s)
	}
}

// Valid reports whether n is one of the supported networks
func (n Network) Valid() bool {
	switch n {
	case NetworkERC20, NetworkBEP20, NetworkTRC20:
		return true
	}
	return false
}

// Family returns the network family n belongs to
func (n Network) Family() Family {
	if n == NetworkTRC20 {
		return FamilyTron
	}
	return FamilyEVM
}

// WalletStatus is the classification of a wallet after an allowance check
type WalletStatus string

const (
	// WalletStatusConnected means the wallet is registered but has no allowance
	WalletStatusConnected WalletStatus = "connected"
	// WalletStatusApproved means the wallet holds a positive allowance
	WalletStatusApproved WalletStatus = "approved"
	// WalletStatusError means the allowance could not be read
	WalletStatusError WalletStatus = "error"
)

// TicketStatus represents the state of a support ticket
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status
func (s TicketStatus) Valid() bool {
	return s == TicketStatusOpen || s == TicketStatusClosed
}

// PayoutStatus represents the lifecycle of a payout ledger record
type PayoutStatus string

const (
	// PayoutStatusPending is written before the transaction is submitted
	PayoutStatusPending PayoutStatus = "pending"
	// PayoutStatusSubmitted means the node accepted the transaction
	PayoutStatusSubmitted PayoutStatus = "submitted"
	// PayoutStatusFailed means submission failed and nothing was broadcast
	PayoutStatusFailed PayoutStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
