package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/usdt-market/internal/adapter"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

// WalletStore persists registered wallets
type WalletStore interface {
	Upsert(ctx context.Context, address string, network types.Network, walletClient string) (*models.Wallet, error)
	GetByID(ctx context.Context, id int64) (*models.Wallet, error)
	List(ctx context.Context) ([]*models.Wallet, error)
	Count(ctx context.Context) (int64, error)
}

// WalletRegistry registers wallets reported by wallet-connect
type WalletRegistry struct {
	store WalletStore
}

// NewWalletRegistry creates a new wallet registry
func NewWalletRegistry(store WalletStore) *WalletRegistry {
	return &WalletRegistry{store: store}
}

// Connect validates and upserts a wallet. Connecting the same
// (address, network) twice returns the same record, whatever the casing
// of an EVM address.
func (r *WalletRegistry) Connect(ctx context.Context, address, network, walletClient string) (*models.Wallet, error) {
	address = strings.TrimSpace(address)
	if address == "" || strings.TrimSpace(network) == "" {
		return nil, apperrors.NewValidationError("address & network required")
	}

	n, err := types.ParseNetwork(network)
	if err != nil {
		return nil, apperrors.NewInvalidParameterError("network", "must be one of ERC-20, BEP-20, TRC-20")
	}
	if !adapter.ValidateAddress(n, address) {
		return nil, apperrors.NewInvalidParameterError("address", fmt.Sprintf("not a valid %s address", n))
	}
	address = adapter.CanonicalAddress(n, address)

	walletClient = strings.TrimSpace(walletClient)
	if walletClient == "" {
		walletClient = models.DefaultWalletClient
	}

	w, err := r.store.Upsert(ctx, address, n, walletClient)
	if err != nil {
		return nil, apperrors.NewDatabaseError("connect wallet", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"walletId":     w.ID,
		"network":      n,
		"walletClient": walletClient,
	}).Info("Wallet connected")

	return w, nil
}

// List returns all wallets, newest first
func (r *WalletRegistry) List(ctx context.Context) ([]*models.Wallet, error) {
	wallets, err := r.store.List(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list wallets", err)
	}
	return wallets, nil
}

// Get returns one wallet
func (r *WalletRegistry) Get(ctx context.Context, id int64) (*models.Wallet, error) {
	w, err := r.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Wallet", strconv.FormatInt(id, 10))
		}
		return nil, apperrors.NewDatabaseError("load wallet", err)
	}
	return w, nil
}

// Count returns the number of registered wallets
func (r *WalletRegistry) Count(ctx context.Context) (int64, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, apperrors.NewDatabaseError("count wallets", err)
	}
	return n, nil
}
