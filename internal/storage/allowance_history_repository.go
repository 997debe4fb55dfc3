package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

// AllowanceHistoryRepository stores allowance snapshots in ClickHouse
type AllowanceHistoryRepository struct {
	db *ClickHouseDB
}

// NewAllowanceHistoryRepository creates a new allowance history repository
func NewAllowanceHistoryRepository(db *ClickHouseDB) *AllowanceHistoryRepository {
	return &AllowanceHistoryRepository{db: db}
}

// AppendBatch inserts snapshot rows in one batch
func (r *AllowanceHistoryRepository) AppendBatch(ctx context.Context, entries []*models.AllowanceHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO allowance_snapshots (wallet_id, address, network, decimals, raw_allowance, approved_amount, status, error, checked_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range entries {
		if err := batch.Append(e.WalletID, e.Address, e.Network, e.Decimals, e.RawAllowance, e.ApprovedAmount, string(e.Status), e.Error, e.CheckedAt); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ListByWallet returns the most recent snapshots for a wallet, newest first
func (r *AllowanceHistoryRepository) ListByWallet(ctx context.Context, walletID int64, since time.Time, limit int) ([]*models.AllowanceHistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	query := `
		SELECT wallet_id, address, network, decimals, raw_allowance, approved_amount, status, error, checked_at
		FROM allowance_snapshots
		WHERE wallet_id = ? AND checked_at >= ?
		ORDER BY checked_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, walletID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query allowance history: %w", err)
	}
	defer rows.Close()

	var entries []*models.AllowanceHistoryEntry
	for rows.Next() {
		var e models.AllowanceHistoryEntry
		var status string
		if err := rows.Scan(&e.WalletID, &e.Address, &e.Network, &e.Decimals, &e.RawAllowance, &e.ApprovedAmount, &status, &e.Error, &e.CheckedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		e.Status = types.WalletStatus(status)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
