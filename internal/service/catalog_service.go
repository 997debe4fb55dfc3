package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

// TraderStore persists marketplace traders
type TraderStore interface {
	List(ctx context.Context) ([]*models.Trader, error)
	GetByID(ctx context.Context, id int64) (*models.Trader, error)
	Create(ctx context.Context, t *models.Trader) (*models.Trader, error)
	Update(ctx context.Context, t *models.Trader) (*models.Trader, error)
	SetOnline(ctx context.Context, id int64, online bool) (*models.Trader, error)
	Delete(ctx context.Context, id int64) error
	Totals(ctx context.Context) (totalTrades int64, online int64, err error)
}

// AdStore persists promotional ads
type AdStore interface {
	List(ctx context.Context) ([]*models.Ad, error)
	Create(ctx context.Context, a *models.Ad) (*models.Ad, error)
	Update(ctx context.Context, a *models.Ad) (*models.Ad, error)
	SetActive(ctx context.Context, id int64, active bool) (*models.Ad, error)
	Delete(ctx context.Context, id int64) error
}

// CatalogService manages the public trader board and ads
type CatalogService struct {
	traders TraderStore
	ads     AdStore
}

// NewCatalogService creates a new catalog service
func NewCatalogService(traders TraderStore, ads AdStore) *CatalogService {
	return &CatalogService{traders: traders, ads: ads}
}

// ListTraders returns all traders by id
func (s *CatalogService) ListTraders(ctx context.Context) ([]*models.Trader, error) {
	traders, err := s.traders.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list traders", err)
	}
	return traders, nil
}

// GetTrader returns one trader
func (s *CatalogService) GetTrader(ctx context.Context, id int64) (*models.Trader, error) {
	t, err := s.traders.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "Trader", id, "load trader")
	}
	return t, nil
}

// CreateTrader validates and inserts a trader
func (s *CatalogService) CreateTrader(ctx context.Context, t *models.Trader) (*models.Trader, error) {
	if err := validateTrader(t); err != nil {
		return nil, err
	}
	created, err := s.traders.Create(ctx, t)
	if err != nil {
		return nil, storeError(err, "Trader", t.ID, "create trader")
	}
	return created, nil
}

// UpdateTrader replaces a trader's editable fields
func (s *CatalogService) UpdateTrader(ctx context.Context, id int64, t *models.Trader) (*models.Trader, error) {
	if err := validateTrader(t); err != nil {
		return nil, err
	}
	t.ID = id
	updated, err := s.traders.Update(ctx, t)
	if err != nil {
		return nil, storeError(err, "Trader", id, "update trader")
	}
	return updated, nil
}

// SetTraderOnline toggles a trader's online flag
func (s *CatalogService) SetTraderOnline(ctx context.Context, id int64, online bool) (*models.Trader, error) {
	t, err := s.traders.SetOnline(ctx, id, online)
	if err != nil {
		return nil, storeError(err, "Trader", id, "update trader status")
	}
	return t, nil
}

// DeleteTrader removes a trader
func (s *CatalogService) DeleteTrader(ctx context.Context, id int64) error {
	if err := s.traders.Delete(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete trader", err)
	}
	return nil
}

// ListAds returns all ads by id
func (s *CatalogService) ListAds(ctx context.Context) ([]*models.Ad, error) {
	ads, err := s.ads.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list ads", err)
	}
	return ads, nil
}

// CreateAd validates and inserts an ad
func (s *CatalogService) CreateAd(ctx context.Context, a *models.Ad) (*models.Ad, error) {
	if strings.TrimSpace(a.Title) == "" {
		return nil, apperrors.NewInvalidParameterError("title", "required")
	}
	created, err := s.ads.Create(ctx, a)
	if err != nil {
		return nil, storeError(err, "Ad", a.ID, "create ad")
	}
	return created, nil
}

// UpdateAd replaces an ad's editable fields
func (s *CatalogService) UpdateAd(ctx context.Context, id int64, a *models.Ad) (*models.Ad, error) {
	if strings.TrimSpace(a.Title) == "" {
		return nil, apperrors.NewInvalidParameterError("title", "required")
	}
	a.ID = id
	updated, err := s.ads.Update(ctx, a)
	if err != nil {
		return nil, storeError(err, "Ad", id, "update ad")
	}
	return updated, nil
}

// SetAdActive toggles whether an ad is shown
func (s *CatalogService) SetAdActive(ctx context.Context, id int64, active bool) (*models.Ad, error) {
	a, err := s.ads.SetActive(ctx, id, active)
	if err != nil {
		return nil, storeError(err, "Ad", id, "update ad status")
	}
	return a, nil
}

// DeleteAd removes an ad
func (s *CatalogService) DeleteAd(ctx context.Context, id int64) error {
	if err := s.ads.Delete(ctx, id); err != nil {
		return apperrors.NewDatabaseError("delete ad", err)
	}
	return nil
}

func validateTrader(t *models.Trader) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return apperrors.NewInvalidParameterError("name", "required")
	}
	n, err := types.ParseNetwork(string(t.Network))
	if err != nil {
		return apperrors.NewInvalidParameterError("network", "must be one of ERC-20, BEP-20, TRC-20")
	}
	t.Network = n
	if t.PricePerUSDT < 0 {
		return apperrors.NewInvalidParameterError("pricePerUsdt", "must not be negative")
	}
	if t.Limit < 0 {
		return apperrors.NewInvalidParameterError("limit", "must not be negative")
	}
	if t.PaymentOptions == nil {
		t.PaymentOptions = []models.PaymentOption{}
	}
	return nil
}

// storeError maps repository sentinels to API errors
func storeError(err error, resource string, id int64, op string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NewNotFoundError(resource, strconv.FormatInt(id, 10))
	case errors.Is(err, storage.ErrDuplicate):
		return apperrors.NewConflictError(resource + " " + strconv.FormatInt(id, 10) + " already exists")
	default:
		return apperrors.NewDatabaseError(op, err)
	}
}
