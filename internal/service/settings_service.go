package service

import (
	"context"
	"strings"

	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
)

// SettingsStore persists the settings singleton
type SettingsStore interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, s *models.Settings) (*models.Settings, error)
}

// SettingsUpdate carries the fields an admin changes. Nil fields keep
// their current value.
type SettingsUpdate struct {
	PlatformFee     *float64 `json:"platformFee"`
	MinTradeAmount  *float64 `json:"minTradeAmount"`
	SupportEmail    *string  `json:"supportEmail"`
	MaintenanceMode *bool    `json:"maintenanceMode"`
}

// SettingsService reads and updates marketplace settings
type SettingsService struct {
	store SettingsStore
}

// NewSettingsService creates a new settings service
func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

// Get returns the settings, creating the defaults on first read
func (s *SettingsService) Get(ctx context.Context) (*models.Settings, error) {
	settings, err := s.store.Get(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load settings", err)
	}
	return settings, nil
}

// Update applies a partial update
func (s *SettingsService) Update(ctx context.Context, u SettingsUpdate) (*models.Settings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	next := *current
	if u.PlatformFee != nil {
		if *u.PlatformFee < 0 || *u.PlatformFee > 100 {
			return nil, apperrors.NewInvalidParameterError("platformFee", "must be between 0 and 100")
		}
		next.PlatformFee = *u.PlatformFee
	}
	if u.MinTradeAmount != nil {
		if *u.MinTradeAmount < 0 {
			return nil, apperrors.NewInvalidParameterError("minTradeAmount", "must not be negative")
		}
		next.MinTradeAmount = *u.MinTradeAmount
	}
	if u.SupportEmail != nil {
		next.SupportEmail = strings.TrimSpace(*u.SupportEmail)
	}
	if u.MaintenanceMode != nil {
		next.MaintenanceMode = *u.MaintenanceMode
	}

	updated, err := s.store.Update(ctx, &next)
	if err != nil {
		return nil, apperrors.NewDatabaseError("update settings", err)
	}
	logging.FromContext(ctx).WithField("maintenanceMode", updated.MaintenanceMode).Info("Settings updated")
	return updated, nil
}
