package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/config"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

const (
	ownerEVM  = "0x1111111111111111111111111111111111111111"
	tokenEVM  = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	spendEVM  = "0x2222222222222222222222222222222222222222"
	coldEVM   = "0x3333333333333333333333333333333333333333"
	ownerTron = "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8"
	tokenTron = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	spendTron = "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7"
	coldTron  = "TMuA6YqfCeX8EhbfYEg5y7S4DqzSJireY9"
)

var testColdWallets = config.ColdWalletConfig{EVM: coldEVM, Tron: coldTron}

func testContracts() Contracts {
	return Contracts{
		types.NetworkERC20: {Token: tokenEVM, Spender: spendEVM},
		types.NetworkBEP20: {Token: tokenEVM, Spender: spendEVM},
		types.NetworkTRC20: {Token: tokenTron, Spender: spendTron},
	}
}

type transferCall struct {
	Spender   string
	Owner     string
	Recipient string
	Raw       *big.Int
}

// fakeChain is a scripted ChainAdapter
type fakeChain struct {
	network   types.Network
	decimals  uint8
	allowance *big.Int
	decErr    error
	allowErr  error
	execErr   error
	panicMsg  string
	// execGate, when set, blocks ExecuteRelayedTransfer until closed
	execGate chan struct{}

	mu        sync.Mutex
	transfers []transferCall
}

func newFakeChain(network types.Network, decimals uint8, allowance int64) *fakeChain {
	return &fakeChain{network: network, decimals: decimals, allowance: big.NewInt(allowance)}
}

func (f *fakeChain) Network() types.Network { return f.network }

func (f *fakeChain) ValidateAddress(addr string) bool {
	return adapter.ValidateAddress(f.network, addr)
}

func (f *fakeChain) Decimals(ctx context.Context, token string) (uint8, error) {
	if f.decErr != nil {
		return 0, f.decErr
	}
	return f.decimals, nil
}

func (f *fakeChain) Allowance(ctx context.Context, owner, spender, token string) (*big.Int, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.allowErr != nil {
		return nil, f.allowErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeChain) ExecuteRelayedTransfer(ctx context.Context, spender, owner, recipient string, raw *big.Int) (string, error) {
	if f.execGate != nil {
		<-f.execGate
	}
	if f.execErr != nil {
		return "", f.execErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, transferCall{Spender: spender, Owner: owner, Recipient: recipient, Raw: new(big.Int).Set(raw)})
	f.allowance.Sub(f.allowance, raw)
	return fmt.Sprintf("0xtx%d", len(f.transfers)), nil
}

func (f *fakeChain) calls() []transferCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transferCall(nil), f.transfers...)
}

// fakeAdapters resolves networks to fake chains
type fakeAdapters map[types.Network]adapter.ChainAdapter

func (m fakeAdapters) Get(network types.Network) (adapter.ChainAdapter, error) {
	if a, ok := m[network]; ok {
		return a, nil
	}
	return nil, adapter.NewAdapterError(network, "Get", adapter.ErrUnsupportedNetwork, nil)
}

// mockWalletRepo is an in-memory wallet store
type mockWalletRepo struct {
	mu      sync.Mutex
	wallets map[int64]*models.Wallet
	nextID  int64
	now     time.Time
}

func newMockWalletRepo(wallets ...*models.Wallet) *mockWalletRepo {
	m := &mockWalletRepo{wallets: make(map[int64]*models.Wallet), now: time.Unix(1_700_000_000, 0)}
	for _, w := range wallets {
		m.nextID++
		if w.ID == 0 {
			w.ID = m.nextID
		}
		if w.CreatedAt.IsZero() {
			w.CreatedAt = m.now.Add(time.Duration(w.ID) * time.Minute)
		}
		m.wallets[w.ID] = w
	}
	return m
}

func (m *mockWalletRepo) Upsert(ctx context.Context, address string, network types.Network, walletClient string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.wallets {
		if w.Address == address && w.Network == network {
			w.WalletClient = walletClient
			return w, nil
		}
	}
	m.nextID++
	w := &models.Wallet{ID: m.nextID, Address: address, Network: network, WalletClient: walletClient, CreatedAt: m.now.Add(time.Duration(m.nextID) * time.Minute)}
	m.wallets[w.ID] = w
	return w, nil
}

func (m *mockWalletRepo) GetByID(ctx context.Context, id int64) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[id]; ok {
		return w, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockWalletRepo) List(ctx context.Context) ([]*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Wallet, 0, len(m.wallets))
	for _, w := range m.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockWalletRepo) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.wallets)), nil
}

// mockLedger is an in-memory payout ledger
type mockLedger struct {
	mu      sync.Mutex
	records map[string]*models.PayoutRecord
}

func newMockLedger() *mockLedger {
	return &mockLedger{records: make(map[string]*models.PayoutRecord)}
}

func (m *mockLedger) CreatePending(ctx context.Context, p *models.PayoutRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.IdempotencyKey != nil {
		for _, r := range m.records {
			if r.IdempotencyKey != nil && *r.IdempotencyKey == *p.IdempotencyKey {
				return storage.ErrDuplicate
			}
		}
	}
	p.ID = uuid.NewString()
	p.Status = types.PayoutStatusPending
	cp := *p
	m.records[p.ID] = &cp
	return nil
}

func (m *mockLedger) MarkSubmitted(ctx context.Context, id, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != types.PayoutStatusPending {
		return storage.ErrNotFound
	}
	r.Status = types.PayoutStatusSubmitted
	r.TxHash = &txHash
	return nil
}

func (m *mockLedger) MarkFailed(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || r.Status != types.PayoutStatusPending {
		return storage.ErrNotFound
	}
	r.Status = types.PayoutStatusFailed
	r.Error = &reason
	return nil
}

func (m *mockLedger) GetByIdempotencyKey(ctx context.Context, key string) (*models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.IdempotencyKey != nil && *r.IdempotencyKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *mockLedger) HasPending(ctx context.Context, walletID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.WalletID == walletID && r.Status == types.PayoutStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockLedger) ListByWallet(ctx context.Context, walletID int64) ([]*models.PayoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PayoutRecord
	for _, r := range m.records {
		if r.WalletID == walletID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockLedger) byStatus(status types.PayoutStatus) []*models.PayoutRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PayoutRecord
	for _, r := range m.records {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out
}
