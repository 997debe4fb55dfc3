package models

import "time"

// Settings holds the platform-wide marketplace settings. There is one row.
type Settings struct {
	PlatformFee     float64   `json:"platformFee" db:"platform_fee"`
	MinTradeAmount  float64   `json:"minTradeAmount" db:"min_trade_amount"`
	SupportEmail    string    `json:"supportEmail" db:"support_email"`
	MaintenanceMode bool      `json:"maintenanceMode" db:"maintenance_mode"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

// DefaultSettings returns the settings created on first read
func DefaultSettings() *Settings {
	return &Settings{
		PlatformFee:     0.1,
		MinTradeAmount:  100,
		SupportEmail:    "support@example.com",
		MaintenanceMode: false,
	}
}

// AdminUser is an operator account for the admin panel
type AdminUser struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
