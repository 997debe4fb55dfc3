package models

import (
	"time"

	"github.com/usdt-market/internal/types"
)

// Ticket is a support request submitted from the public site
type Ticket struct {
	ID            int64              `json:"id" db:"id"`
	Name          string             `json:"name" db:"name"`
	Email         string             `json:"email" db:"email"`
	WalletAddress string             `json:"walletAddress" db:"wallet_address"`
	Subject       string             `json:"subject" db:"subject"`
	Message       string             `json:"message" db:"message"`
	Status        types.TicketStatus `json:"status" db:"status"`
	CreatedAt     time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time          `json:"updatedAt" db:"updated_at"`
}
