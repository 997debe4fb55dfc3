package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/types"
)

// AllowanceSnapshot is the live allowance state of one wallet.
// It is computed per request and never stored in Postgres.
type AllowanceSnapshot struct {
	Wallet         *Wallet            `json:"wallet"`
	Decimals       uint8              `json:"decimals"`
	RawAllowance   string             `json:"rawAllowance"`
	ApprovedAmount decimal.Decimal    `json:"approvedAmount"`
	Status         types.WalletStatus `json:"status"`
	Error          string             `json:"error,omitempty"`
	LastUpdated    time.Time          `json:"lastUpdated"`
}

// Approved reports whether the snapshot classifies the wallet as approved
func (s *AllowanceSnapshot) Approved() bool {
	return s.Status == types.WalletStatusApproved
}

// AllowanceHistoryEntry is one row of the allowance snapshot history
type AllowanceHistoryEntry struct {
	WalletID       int64              `json:"walletId" ch:"wallet_id"`
	Address        string             `json:"address" ch:"address"`
	Network        string             `json:"network" ch:"network"`
	Decimals       uint8              `json:"decimals" ch:"decimals"`
	RawAllowance   string             `json:"rawAllowance" ch:"raw_allowance"`
	ApprovedAmount string             `json:"approvedAmount" ch:"approved_amount"`
	Status         types.WalletStatus `json:"status" ch:"status"`
	Error          string             `json:"error,omitempty" ch:"error"`
	CheckedAt      time.Time          `json:"checkedAt" ch:"checked_at"`
}
