package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

const walletColumns = `id, address, network, wallet_client, created_at, updated_at`

// WalletRepository handles wallet persistence
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Upsert inserts the wallet or, when (address, network) already exists,
// refreshes its wallet client. created_at is kept from the first insert.
func (r *WalletRepository) Upsert(ctx context.Context, address string, network types.Network, walletClient string) (*models.Wallet, error) {
	query := `
		INSERT INTO wallets (address, network, wallet_client, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (address, network) DO UPDATE
		SET wallet_client = EXCLUDED.wallet_client, updated_at = NOW()
		RETURNING ` + walletColumns

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, address, string(network), walletClient))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert wallet: %w", err)
	}
	return w, nil
}

// GetByID retrieves a wallet by ID
func (r *WalletRepository) GetByID(ctx context.Context, id int64) (*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "wallet")
	}
	return w, nil
}

// List returns all wallets, newest first
func (r *WalletRepository) List(ctx context.Context) ([]*models.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets ORDER BY created_at DESC, id DESC`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}
	defer rows.Close()

	wallets := make([]*models.Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// Count returns the number of registered wallets
func (r *WalletRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM wallets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count wallets: %w", err)
	}
	return n, nil
}

func scanWallet(row pgx.Row) (*models.Wallet, error) {
	var w models.Wallet
	if err := row.Scan(&w.ID, &w.Address, &w.Network, &w.WalletClient, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
