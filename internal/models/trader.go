package models

import (
	"time"

	"github.com/usdt-market/internal/types"
)

// PaymentOption is a fiat payment method a trader accepts, with the
// form fields the buyer has to fill in
type PaymentOption struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// Trader is a marketplace counterparty listed on the public board
type Trader struct {
	ID             int64           `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Avatar         string          `json:"avatar" db:"avatar"`
	Country        string          `json:"country" db:"country"`
	Currency       string          `json:"currency" db:"currency"`
	CurrencySymbol string          `json:"currencySymbol" db:"currency_symbol"`
	PricePerUSDT   float64         `json:"pricePerUsdt" db:"price_per_usdt"`
	TotalTrades    int64           `json:"totalTrades" db:"total_trades"`
	SuccessRate    float64         `json:"successRate" db:"success_rate"`
	ResponseRate   float64         `json:"responseRate" db:"response_rate"`
	Network        types.Network   `json:"network" db:"network"`
	PaymentOptions []PaymentOption `json:"paymentOptions" db:"payment_options"`
	Limit          float64         `json:"limit" db:"trade_limit"`
	Online         bool            `json:"online" db:"online"`
	Rating         float64         `json:"rating" db:"rating"`
	Reviews        int64           `json:"reviews" db:"reviews"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time       `json:"updatedAt" db:"updated_at"`
}

// Ad is a promotional banner shown on the marketplace
type Ad struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Image       string    `json:"image" db:"image"`
	BgColor     string    `json:"bgColor" db:"bg_color"`
	Link        string    `json:"link" db:"link"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
