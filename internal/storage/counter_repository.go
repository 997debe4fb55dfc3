package storage

import (
	"context"
	"fmt"
)

// Counter names for entities with sequential public ids
const (
	CounterTrader = "trader"
	CounterAd     = "ad"
	CounterTicket = "ticket"
)

// CounterRepository hands out sequential ids per entity type
type CounterRepository struct {
	db *PostgresDB
}

// NewCounterRepository creates a new counter repository
func NewCounterRepository(db *PostgresDB) *CounterRepository {
	return &CounterRepository{db: db}
}

// Next atomically increments and returns the counter for name, starting at 1
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	query := `
		INSERT INTO counters (name, seq) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET seq = counters.seq + 1
		RETURNING seq
	`

	var seq int64
	if err := r.db.Pool().QueryRow(ctx, query, name).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}
	return seq, nil
}
