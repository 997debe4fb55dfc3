package storage

import (
	"context"
	"fmt"

	"github.com/usdt-market/internal/models"
)

// SettingsRepository handles the singleton settings row and admin users
type SettingsRepository struct {
	db *PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *PostgresDB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the settings row, creating it with defaults on first read
func (r *SettingsRepository) Get(ctx context.Context) (*models.Settings, error) {
	d := models.DefaultSettings()
	insert := `
		INSERT INTO settings (id, platform_fee, min_trade_amount, support_email, maintenance_mode, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.Pool().Exec(ctx, insert, d.PlatformFee, d.MinTradeAmount, d.SupportEmail, d.MaintenanceMode); err != nil {
		return nil, fmt.Errorf("failed to initialize settings: %w", err)
	}

	var s models.Settings
	query := `SELECT platform_fee, min_trade_amount, support_email, maintenance_mode, updated_at FROM settings WHERE id = 1`
	if err := r.db.Pool().QueryRow(ctx, query).Scan(&s.PlatformFee, &s.MinTradeAmount, &s.SupportEmail, &s.MaintenanceMode, &s.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// Update writes all settings fields
func (r *SettingsRepository) Update(ctx context.Context, s *models.Settings) (*models.Settings, error) {
	query := `
		INSERT INTO settings (id, platform_fee, min_trade_amount, support_email, maintenance_mode, updated_at)
		VALUES (1, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			platform_fee = EXCLUDED.platform_fee,
			min_trade_amount = EXCLUDED.min_trade_amount,
			support_email = EXCLUDED.support_email,
			maintenance_mode = EXCLUDED.maintenance_mode,
			updated_at = NOW()
		RETURNING platform_fee, min_trade_amount, support_email, maintenance_mode, updated_at
	`

	var out models.Settings
	err := r.db.Pool().QueryRow(ctx, query, s.PlatformFee, s.MinTradeAmount, s.SupportEmail, s.MaintenanceMode).
		Scan(&out.PlatformFee, &out.MinTradeAmount, &out.SupportEmail, &out.MaintenanceMode, &out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return &out, nil
}
