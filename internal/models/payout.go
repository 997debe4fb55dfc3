package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/types"
)

// PayoutRecord is the ledger entry for one relayed transfer attempt.
// It is inserted as pending before submission and resolved afterwards.
type PayoutRecord struct {
	ID             string             `json:"id" db:"id"`
	WalletID       int64              `json:"walletId" db:"wallet_id"`
	Network        types.Network      `json:"network" db:"network"`
	Owner          string             `json:"owner" db:"owner"`
	Recipient      string             `json:"recipient" db:"recipient"`
	Amount         decimal.Decimal    `json:"amount" db:"amount"`
	RawAmount      string             `json:"rawAmount" db:"raw_amount"`
	TxHash         *string            `json:"txHash,omitempty" db:"tx_hash"`
	Status         types.PayoutStatus `json:"status" db:"status"`
	Error          *string            `json:"error,omitempty" db:"error"`
	IdempotencyKey *string            `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	CreatedAt      time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time          `json:"updatedAt" db:"updated_at"`
}
