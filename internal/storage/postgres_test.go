package storage

import (
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

// openTestPostgres connects to a local Postgres and applies migrations.
// Tests are skipped when the database is not reachable.
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           envOr("POSTGRES_HOST", "localhost"),
		Port:           envOr("POSTGRES_PORT", "5432"),
		Database:       envOr("POSTGRES_DB", "usdt_market_test"),
		User:           envOr("POSTGRES_USER", "market"),
		Password:       envOr("POSTGRES_PASSWORD", "market_dev_password"),
		MaxConnections: 5,
	}

	db, err := NewPostgresDB(testContext(t), cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	require.NoError(t, RunMigrations(cfg.URL(), "../../migrations/postgres"))

	_, err = db.Pool().Exec(testContext(t), `TRUNCATE payouts, wallets, traders, ads, tickets, settings, admin_users, counters RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestWalletRepository_UpsertIsIdempotent(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewWalletRepository(db)
	ctx := testContext(t)

	first, err := repo.Upsert(ctx, "0x2222222222222222222222222222222222222222", types.NetworkERC20, "metamask")
	require.NoError(t, err)

	second, err := repo.Upsert(ctx, "0x2222222222222222222222222222222222222222", types.NetworkERC20, "trustwallet")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "trustwallet", second.WalletClient)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	// Same address on another network is a different wallet
	third, err := repo.Upsert(ctx, "0x2222222222222222222222222222222222222222", types.NetworkBEP20, "metamask")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = repo.GetByID(ctx, 999999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCounterRepository_NextIsSequentialUnderConcurrency(t *testing.T) {
	db := openTestPostgres(t)
	counters := NewCounterRepository(db)
	ctx := testContext(t)

	const n = 20
	seen := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := counters.Next(ctx, CounterTicket)
			assert.NoError(t, err)
			seen <- id
		}()
	}
	wg.Wait()
	close(seen)

	ids := make(map[int64]bool)
	for id := range seen {
		ids[id] = true
	}
	assert.Len(t, ids, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, ids[i], "missing id %d", i)
	}
}

func TestPayoutRepository_Ledger(t *testing.T) {
	db := openTestPostgres(t)
	wallets := NewWalletRepository(db)
	payouts := NewPayoutRepository(db)
	ctx := testContext(t)

	w, err := wallets.Upsert(ctx, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", types.NetworkTRC20, "tronlink")
	require.NoError(t, err)

	key := "idem-1"
	rec := &models.PayoutRecord{
		WalletID:       w.ID,
		Network:        types.NetworkTRC20,
		Owner:          w.Address,
		Recipient:      "TQn9Y2khEsLJW1ChVWFMSMeRDow5KcbLSE",
		Amount:         decimal.RequireFromString("12.5"),
		RawAmount:      "12500000",
		IdempotencyKey: &key,
	}
	require.NoError(t, payouts.CreatePending(ctx, rec))
	assert.NotEmpty(t, rec.ID)

	pending, err := payouts.HasPending(ctx, w.ID)
	require.NoError(t, err)
	assert.True(t, pending)

	dup := *rec
	dup.ID = ""
	assert.ErrorIs(t, payouts.CreatePending(ctx, &dup), ErrDuplicate)

	require.NoError(t, payouts.MarkSubmitted(ctx, rec.ID, "abc123"))
	assert.ErrorIs(t, payouts.MarkFailed(ctx, rec.ID, "late"), ErrNotFound)

	got, err := payouts.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.PayoutStatusSubmitted, got.Status)
	require.NotNil(t, got.TxHash)
	assert.Equal(t, "abc123", *got.TxHash)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.5")))

	pending, err = payouts.HasPending(ctx, w.ID)
	require.NoError(t, err)
	assert.False(t, pending)

	list, err := payouts.ListByWallet(ctx, w.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSettingsRepository_GetCreatesDefaults(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewSettingsRepository(db)
	ctx := testContext(t)

	s, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.1, s.PlatformFee)
	assert.Equal(t, float64(100), s.MinTradeAmount)
	assert.Equal(t, "support@example.com", s.SupportEmail)
	assert.False(t, s.MaintenanceMode)

	s.MaintenanceMode = true
	updated, err := repo.Update(ctx, s)
	require.NoError(t, err)
	assert.True(t, updated.MaintenanceMode)

	again, err := repo.Get(ctx)
	require.NoError(t, err)
	assert.True(t, again.MaintenanceMode)
}

func TestTraderRepository_CRUD(t *testing.T) {
	db := openTestPostgres(t)
	repo := NewTraderRepository(db, NewCounterRepository(db))
	ctx := testContext(t)

	created, err := repo.Create(ctx, &models.Trader{
		Name:           "Alice",
		Currency:       "EUR",
		PricePerUSDT:   0.92,
		TotalTrades:    40,
		Network:        types.NetworkTRC20,
		PaymentOptions: []models.PaymentOption{{Name: "SEPA", Fields: []string{"IBAN"}}},
		Limit:          5000,
		Online:         true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.Equal(t, []models.PaymentOption{{Name: "SEPA", Fields: []string{"IBAN"}}}, created.PaymentOptions)

	_, err = repo.Create(ctx, &models.Trader{Name: "Bob", TotalTrades: 2, Network: types.NetworkERC20})
	require.NoError(t, err)

	trades, online, err := repo.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), trades)
	assert.Equal(t, int64(1), online)

	off, err := repo.SetOnline(ctx, created.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Online)

	require.NoError(t, repo.Delete(ctx, created.ID))
	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
