package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

const payoutColumns = `id::text, wallet_id, network, owner, recipient, amount::text, raw_amount,
	tx_hash, status, error, idempotency_key, created_at, updated_at`

// PayoutRepository is the ledger of relayed transfer attempts
type PayoutRepository struct {
	db *PostgresDB
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *PostgresDB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// CreatePending inserts a pending record before the transaction is submitted.
// A reused idempotency key yields ErrDuplicate.
func (r *PayoutRepository) CreatePending(ctx context.Context, p *models.PayoutRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = types.PayoutStatusPending

	query := `
		INSERT INTO payouts (id, wallet_id, network, owner, recipient, amount, raw_amount, status, idempotency_key, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::numeric, $7, $8, $9, NOW(), NOW())
		RETURNING created_at, updated_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		p.ID, p.WalletID, string(p.Network), p.Owner, p.Recipient, p.Amount.String(), p.RawAmount,
		string(p.Status), p.IdempotencyKey,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("payout idempotency key: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create payout record: %w", err)
	}
	return nil
}

// MarkSubmitted records the transaction hash of an accepted submission
func (r *PayoutRepository) MarkSubmitted(ctx context.Context, id, txHash string) error {
	return r.resolve(ctx, id, types.PayoutStatusSubmitted, &txHash, nil)
}

// MarkFailed records why a submission failed
func (r *PayoutRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return r.resolve(ctx, id, types.PayoutStatusFailed, nil, &reason)
}

func (r *PayoutRepository) resolve(ctx context.Context, id string, status types.PayoutStatus, txHash, reason *string) error {
	query := `
		UPDATE payouts SET status = $2, tx_hash = $3, error = $4, updated_at = NOW()
		WHERE id = $1::uuid AND status = 'pending'
	`
	tag, err := r.db.Pool().Exec(ctx, query, id, string(status), txHash, reason)
	if err != nil {
		return fmt.Errorf("failed to update payout %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending payout %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetByIdempotencyKey returns the record created with key
func (r *PayoutRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.PayoutRecord, error) {
	p, err := scanPayout(r.db.Pool().QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE idempotency_key = $1`, key))
	if err != nil {
		return nil, notFound(err, "payout")
	}
	return p, nil
}

// HasPending reports whether the wallet has an unresolved payout
func (r *PayoutRepository) HasPending(ctx context.Context, walletID int64) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM payouts WHERE wallet_id = $1 AND status = 'pending')`
	if err := r.db.Pool().QueryRow(ctx, query, walletID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check pending payouts: %w", err)
	}
	return exists, nil
}

// ListByWallet returns the wallet's payouts, newest first
func (r *PayoutRepository) ListByWallet(ctx context.Context, walletID int64) ([]*models.PayoutRecord, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE wallet_id = $1 ORDER BY created_at DESC`, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]*models.PayoutRecord, 0)
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func scanPayout(row pgx.Row) (*models.PayoutRecord, error) {
	var p models.PayoutRecord
	var amount string
	err := row.Scan(
		&p.ID, &p.WalletID, &p.Network, &p.Owner, &p.Recipient, &amount, &p.RawAmount,
		&p.TxHash, &p.Status, &p.Error, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("malformed payout amount %q: %w", amount, err)
	}
	return &p, nil
}
