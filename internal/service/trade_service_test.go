package service

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/config"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

type mockTraders struct {
	traders map[int64]*models.Trader
}

func (m *mockTraders) List(ctx context.Context) ([]*models.Trader, error) {
	out := make([]*models.Trader, 0, len(m.traders))
	for _, t := range m.traders {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTraders) GetByID(ctx context.Context, id int64) (*models.Trader, error) {
	if t, ok := m.traders[id]; ok {
		return t, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockTraders) Create(ctx context.Context, t *models.Trader) (*models.Trader, error) {
	if t.ID == 0 {
		t.ID = int64(len(m.traders) + 1)
	}
	if _, ok := m.traders[t.ID]; ok {
		return nil, storage.ErrDuplicate
	}
	m.traders[t.ID] = t
	return t, nil
}

func (m *mockTraders) Update(ctx context.Context, t *models.Trader) (*models.Trader, error) {
	if _, ok := m.traders[t.ID]; !ok {
		return nil, storage.ErrNotFound
	}
	m.traders[t.ID] = t
	return t, nil
}

func (m *mockTraders) SetOnline(ctx context.Context, id int64, online bool) (*models.Trader, error) {
	t, ok := m.traders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	t.Online = online
	return t, nil
}

func (m *mockTraders) Delete(ctx context.Context, id int64) error {
	delete(m.traders, id)
	return nil
}

func (m *mockTraders) Totals(ctx context.Context) (int64, int64, error) {
	var trades, online int64
	for _, t := range m.traders {
		trades += t.TotalTrades
		if t.Online {
			online++
		}
	}
	return trades, online, nil
}

type mockSettings struct {
	settings *models.Settings
}

func (m *mockSettings) Get(ctx context.Context) (*models.Settings, error) {
	if m.settings == nil {
		m.settings = models.DefaultSettings()
	}
	cp := *m.settings
	return &cp, nil
}

func (m *mockSettings) Update(ctx context.Context, s *models.Settings) (*models.Settings, error) {
	cp := *s
	m.settings = &cp
	return &cp, nil
}

type tradeFixture struct {
	svc      *TradeService
	eth      *fakeChain
	settings *mockSettings
}

func newTradeFixture(t *testing.T) *tradeFixture {
	t.Helper()
	traders := &mockTraders{traders: map[int64]*models.Trader{
		7: {ID: 7, Name: "Ada", Currency: "NGN", CurrencySymbol: "₦", PricePerUSDT: 1550.5, Network: types.NetworkERC20, Limit: 5000, Online: true},
	}}
	eth := newFakeChain(types.NetworkERC20, 6, 0)
	adapters := fakeAdapters{types.NetworkERC20: eth}
	verifier := NewAllowanceVerifier(adapters, testContracts(), 2)
	settings := &mockSettings{}
	svc := NewTradeService(traders, settings, verifier, adapters, testContracts(), config.TradeConfig{EscrowDuration: 30 * time.Minute, TrustWalletApprovalUSDT: 1_000_000})
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return &tradeFixture{svc: svc, eth: eth, settings: settings}
}

func TestQuote_PricesAndPlansApproval(t *testing.T) {
	f := newTradeFixture(t)

	q, err := f.svc.Quote(context.Background(), QuoteRequest{TraderID: 7, AmountUSDT: amount("250")})
	require.NoError(t, err)

	assert.Equal(t, "250", q.AmountUSDT)
	assert.Equal(t, "387625.00", q.FiatAmount)
	assert.Equal(t, "NGN", q.Currency)
	assert.Equal(t, "chat_trader_7_user_guest", q.ChatRoom)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 34, 5, 0, time.UTC), q.EscrowExpiresAt)

	plan := q.Approval
	require.NotNil(t, plan)
	assert.True(t, plan.ApprovalRequired)
	assert.Equal(t, spendEVM, plan.Spender)
	assert.Equal(t, "250000000", plan.ApproveRaw)
	assert.Equal(t, adapter.ApproveSelector, plan.Method)
	assert.Empty(t, plan.CurrentAllowance)

	data, err := hex.DecodeString(strings.TrimPrefix(plan.Calldata, "0x"))
	require.NoError(t, err)
	args, err := adapter.ERC20ABI().Methods["approve"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(spendEVM), args[0])
	assert.Equal(t, big.NewInt(250_000_000), args[1])
}

func TestQuote_ExistingAllowanceSkipsApproval(t *testing.T) {
	f := newTradeFixture(t)
	f.eth.allowance = big.NewInt(300_000_000)

	q, err := f.svc.Quote(context.Background(), QuoteRequest{TraderID: 7, AmountUSDT: amount("250"), Owner: ownerEVM})
	require.NoError(t, err)

	assert.False(t, q.Approval.ApprovalRequired)
	assert.Equal(t, "300", q.Approval.CurrentAllowance)
	assert.Equal(t, "chat_trader_7_user_"+ownerEVM, q.ChatRoom)
}

func TestQuote_TrustWalletCeiling(t *testing.T) {
	f := newTradeFixture(t)

	q, err := f.svc.Quote(context.Background(), QuoteRequest{TraderID: 7, AmountUSDT: amount("100"), Owner: ownerEVM, WalletClient: "TrustWallet"})
	require.NoError(t, err)

	assert.Equal(t, "1000000", q.Approval.ApproveAmount)
	assert.Equal(t, "1000000000000", q.Approval.ApproveRaw)
	assert.True(t, q.Approval.ApprovalRequired)
}

func TestQuote_TrustWalletCeilingNeverBelowAmount(t *testing.T) {
	f := newTradeFixture(t)
	f.svc.cfg.TrustWalletApprovalUSDT = 1000

	q, err := f.svc.Quote(context.Background(), QuoteRequest{TraderID: 7, AmountUSDT: amount("2500"), Owner: ownerEVM, WalletClient: "trustwallet"})
	require.NoError(t, err)

	assert.Equal(t, "2500", q.Approval.ApproveAmount)
	assert.Equal(t, "2500000000", q.Approval.ApproveRaw)

	q, err = f.svc.Quote(context.Background(), QuoteRequest{TraderID: 7, AmountUSDT: amount("500"), WalletClient: "TrustWallet"})
	require.NoError(t, err)
	assert.Equal(t, "1000", q.Approval.ApproveAmount)
}

func TestQuote_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		req    QuoteRequest
		setup  func(f *tradeFixture)
		code   string
		status int
	}{
		{name: "below minimum", req: QuoteRequest{TraderID: 7, AmountUSDT: amount("99.99")}, code: apperrors.CodeInvalidParameter, status: 400},
		{name: "above trader limit", req: QuoteRequest{TraderID: 7, AmountUSDT: amount("5000.01")}, code: apperrors.CodeInvalidParameter, status: 400},
		{name: "zero amount", req: QuoteRequest{TraderID: 7, AmountUSDT: amount("0")}, code: apperrors.CodeInvalidParameter, status: 400},
		{name: "unknown trader", req: QuoteRequest{TraderID: 8, AmountUSDT: amount("100")}, code: apperrors.CodeNotFound, status: 404},
		{name: "owner on wrong network", req: QuoteRequest{TraderID: 7, AmountUSDT: amount("100"), Owner: "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"}, code: apperrors.CodeInvalidParameter, status: 400},
		{
			name:  "maintenance mode",
			req:   QuoteRequest{TraderID: 7, AmountUSDT: amount("100")},
			setup: func(f *tradeFixture) { f.settings.settings = &models.Settings{MaintenanceMode: true} },
			code:  apperrors.CodeMaintenance, status: 503,
		},
		{
			name:  "chain down",
			req:   QuoteRequest{TraderID: 7, AmountUSDT: amount("100"), Owner: ownerEVM},
			setup: func(f *tradeFixture) { f.eth.allowErr = adapter.ErrChainUnavailable },
			code:  apperrors.CodeChainUnavailable, status: 502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTradeFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			_, err := f.svc.Quote(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), err.Error())
			assert.Equal(t, tt.status, apperrors.GetHTTPStatusCode(err))
		})
	}
}
