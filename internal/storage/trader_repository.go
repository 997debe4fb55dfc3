package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/usdt-market/internal/models"
)

const traderColumns = `id, name, avatar, country, currency, currency_symbol, price_per_usdt,
	total_trades, success_rate, response_rate, network, payment_options, trade_limit,
	online, rating, reviews, created_at, updated_at`

// TraderRepository handles trader persistence
type TraderRepository struct {
	db       *PostgresDB
	counters *CounterRepository
}

// NewTraderRepository creates a new trader repository
func NewTraderRepository(db *PostgresDB, counters *CounterRepository) *TraderRepository {
	return &TraderRepository{db: db, counters: counters}
}

// List returns all traders ordered by id
func (r *TraderRepository) List(ctx context.Context) ([]*models.Trader, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+traderColumns+` FROM traders ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list traders: %w", err)
	}
	defer rows.Close()

	traders := make([]*models.Trader, 0)
	for rows.Next() {
		t, err := scanTrader(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trader: %w", err)
		}
		traders = append(traders, t)
	}
	return traders, rows.Err()
}

// GetByID retrieves a trader by ID
func (r *TraderRepository) GetByID(ctx context.Context, id int64) (*models.Trader, error) {
	t, err := scanTrader(r.db.Pool().QueryRow(ctx, `SELECT `+traderColumns+` FROM traders WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "trader")
	}
	return t, nil
}

// Create inserts a trader. A zero ID is replaced by the next counter value.
func (r *TraderRepository) Create(ctx context.Context, t *models.Trader) (*models.Trader, error) {
	if t.ID == 0 {
		id, err := r.counters.Next(ctx, CounterTrader)
		if err != nil {
			return nil, err
		}
		t.ID = id
	}

	options, err := marshalPaymentOptions(t.PaymentOptions)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO traders (id, name, avatar, country, currency, currency_symbol, price_per_usdt,
			total_trades, success_rate, response_rate, network, payment_options, trade_limit,
			online, rating, reviews, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		RETURNING ` + traderColumns

	created, err := scanTrader(r.db.Pool().QueryRow(ctx, query,
		t.ID, t.Name, t.Avatar, t.Country, t.Currency, t.CurrencySymbol, t.PricePerUSDT,
		t.TotalTrades, t.SuccessRate, t.ResponseRate, string(t.Network), options, t.Limit,
		t.Online, t.Rating, t.Reviews,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("trader %d: %w", t.ID, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create trader: %w", err)
	}
	return created, nil
}

// Update replaces every editable field of the trader with the given id
func (r *TraderRepository) Update(ctx context.Context, t *models.Trader) (*models.Trader, error) {
	options, err := marshalPaymentOptions(t.PaymentOptions)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE traders SET name = $2, avatar = $3, country = $4, currency = $5, currency_symbol = $6,
			price_per_usdt = $7, total_trades = $8, success_rate = $9, response_rate = $10,
			network = $11, payment_options = $12, trade_limit = $13, online = $14, rating = $15,
			reviews = $16, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + traderColumns

	updated, err := scanTrader(r.db.Pool().QueryRow(ctx, query,
		t.ID, t.Name, t.Avatar, t.Country, t.Currency, t.CurrencySymbol, t.PricePerUSDT,
		t.TotalTrades, t.SuccessRate, t.ResponseRate, string(t.Network), options, t.Limit,
		t.Online, t.Rating, t.Reviews,
	))
	if err != nil {
		return nil, notFound(err, "trader")
	}
	return updated, nil
}

// SetOnline toggles the trader's online flag
func (r *TraderRepository) SetOnline(ctx context.Context, id int64, online bool) (*models.Trader, error) {
	query := `UPDATE traders SET online = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + traderColumns

	t, err := scanTrader(r.db.Pool().QueryRow(ctx, query, id, online))
	if err != nil {
		return nil, notFound(err, "trader")
	}
	return t, nil
}

// Delete removes a trader. Deleting a missing trader is not an error.
func (r *TraderRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Pool().Exec(ctx, `DELETE FROM traders WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete trader: %w", err)
	}
	return nil
}

// Totals returns the summed trade count and the number of online traders
func (r *TraderRepository) Totals(ctx context.Context) (totalTrades int64, online int64, err error) {
	query := `SELECT COALESCE(SUM(total_trades), 0), COUNT(*) FILTER (WHERE online) FROM traders`
	if err := r.db.Pool().QueryRow(ctx, query).Scan(&totalTrades, &online); err != nil {
		return 0, 0, fmt.Errorf("failed to total traders: %w", err)
	}
	return totalTrades, online, nil
}

func marshalPaymentOptions(options []models.PaymentOption) ([]byte, error) {
	if options == nil {
		options = []models.PaymentOption{}
	}
	b, err := json.Marshal(options)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payment options: %w", err)
	}
	return b, nil
}

func scanTrader(row pgx.Row) (*models.Trader, error) {
	var t models.Trader
	var options []byte
	err := row.Scan(
		&t.ID, &t.Name, &t.Avatar, &t.Country, &t.Currency, &t.CurrencySymbol, &t.PricePerUSDT,
		&t.TotalTrades, &t.SuccessRate, &t.ResponseRate, &t.Network, &options, &t.Limit,
		&t.Online, &t.Rating, &t.Reviews, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.PaymentOptions = []models.PaymentOption{}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &t.PaymentOptions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment options: %w", err)
		}
	}
	return &t, nil
}
