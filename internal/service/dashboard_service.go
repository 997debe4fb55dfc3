package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/models"
)

// TraderTotals aggregates trader counters for the admin stats
type TraderTotals interface {
	Totals(ctx context.Context) (totalTrades int64, online int64, err error)
}

// HistoryReader reads recorded allowance snapshots
type HistoryReader interface {
	ListByWallet(ctx context.Context, walletID int64, since time.Time, limit int) ([]*models.AllowanceHistoryEntry, error)
}

// DashboardStats is the admin overview
type DashboardStats struct {
	TotalTrades      int64           `json:"totalTrades"`
	ActiveUsers      int64           `json:"activeUsers"`
	ConnectedWallets int64           `json:"connectedWallets"`
	ApprovedWallets  int64           `json:"approvedWallets"`
	TotalVolume      decimal.Decimal `json:"totalVolume"`
}

// DashboardService joins registered wallets with their live allowance
type DashboardService struct {
	wallets  *WalletRegistry
	verifier *AllowanceVerifier
	traders  TraderTotals
	history  HistoryReader
}

// NewDashboardService creates a new dashboard service. history may be nil
// when no snapshot store is configured.
func NewDashboardService(wallets *WalletRegistry, verifier *AllowanceVerifier, traders TraderTotals, history HistoryReader) *DashboardService {
	return &DashboardService{
		wallets:  wallets,
		verifier: verifier,
		traders:  traders,
		history:  history,
	}
}

// ListEnriched returns every wallet, newest first, with a live snapshot.
// Chain failures show up per wallet as status error, never as a failed call.
func (s *DashboardService) ListEnriched(ctx context.Context) ([]*models.AllowanceSnapshot, error) {
	wallets, err := s.wallets.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.verifier.VerifyAll(ctx, wallets), nil
}

// Snapshot returns the live snapshot of one wallet
func (s *DashboardService) Snapshot(ctx context.Context, walletID int64) (*models.AllowanceSnapshot, error) {
	w, err := s.wallets.Get(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return s.verifier.Verify(ctx, w), nil
}

// Stats computes the admin counters from a full allowance scan
func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	totalTrades, online, err := s.traders.Totals(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("trader totals", err)
	}

	snapshots, err := s.ListEnriched(ctx)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{
		TotalTrades:      totalTrades,
		ActiveUsers:      online,
		ConnectedWallets: int64(len(snapshots)),
		TotalVolume:      decimal.Zero,
	}
	for _, snap := range snapshots {
		if snap.Approved() {
			stats.ApprovedWallets++
			stats.TotalVolume = stats.TotalVolume.Add(snap.ApprovedAmount)
		}
	}
	return stats, nil
}

// History returns recorded snapshots of a wallet since the given time
func (s *DashboardService) History(ctx context.Context, walletID int64, since time.Time, limit int) ([]*models.AllowanceHistoryEntry, error) {
	if s.history == nil {
		return nil, apperrors.NewConfigurationMissingError("CLICKHOUSE_ENABLED")
	}
	if _, err := s.wallets.Get(ctx, walletID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	entries, err := s.history.ListByWallet(ctx, walletID, since, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("allowance history", err)
	}
	return entries, nil
}
