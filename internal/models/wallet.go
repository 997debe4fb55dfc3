// Package models provides data models for the USDT marketplace backend.
package models

import (
	"time"

	"github.com/usdt-market/internal/types"
)

// DefaultWalletClient is stored when the frontend does not report a wallet client
const DefaultWalletClient = "unknown"

// Wallet is a user wallet registered through wallet-connect.
// Allowance data is never persisted; it is read live from the chain.
type Wallet struct {
	ID           int64         `json:"id" db:"id"`
	Address      string        `json:"address" db:"address"`
	Network      types.Network `json:"network" db:"network"`
	WalletClient string        `json:"walletClient" db:"wallet_client"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time     `json:"updatedAt" db:"updated_at"`
}
