package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultVerifyConcurrency bounds VerifyAll when no limit is configured
const DefaultVerifyConcurrency = 16

// AllowanceVerifier reads live allowances and classifies wallets.
// It fails closed: any error yields status error with a zero amount.
type AllowanceVerifier struct {
	adapters    ChainAdapters
	contracts   Contracts
	concurrency int
	now         func() time.Time
}

// NewAllowanceVerifier creates a new allowance verifier
func NewAllowanceVerifier(adapters ChainAdapters, contracts Contracts, concurrency int) *AllowanceVerifier {
	if concurrency <= 0 {
		concurrency = DefaultVerifyConcurrency
	}
	return &AllowanceVerifier{
		adapters:    adapters,
		contracts:   contracts,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// ReadAllowance fetches decimals and allowance(owner, spender) concurrently.
// Errors are categorized API errors.
func (v *AllowanceVerifier) ReadAllowance(ctx context.Context, network types.Network, owner string) (uint8, *big.Int, error) {
	nc, err := v.contracts.resolve(network)
	if err != nil {
		return 0, nil, err
	}
	chain, err := adapterFor(v.adapters, network)
	if err != nil {
		return 0, nil, err
	}

	var decimals uint8
	var allowance *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer recoverChainPanic(&err)
		decimals, err = chain.Decimals(gctx, nc.Token)
		return err
	})
	g.Go(func() (err error) {
		defer recoverChainPanic(&err)
		allowance, err = chain.Allowance(gctx, owner, nc.Spender, nc.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, nil, chainError(network, err)
	}
	if allowance == nil {
		return 0, nil, chainError(network, fmt.Errorf("%w: empty allowance", adapter.ErrChainUnavailable))
	}
	return decimals, allowance, nil
}

// Verify builds the allowance snapshot of one wallet
func (v *AllowanceVerifier) Verify(ctx context.Context, w *models.Wallet) (snapshot *models.AllowanceSnapshot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			snapshot = v.failed(w, fmt.Errorf("panic during verification: %v", r))
		}
		metrics.AllowanceChecksTotal.WithLabelValues(string(w.Network), string(snapshot.Status)).Inc()
		metrics.AllowanceCheckLatency.WithLabelValues(string(w.Network)).Observe(time.Since(start).Seconds())
	}()

	if !w.Network.Valid() {
		return v.failed(w, fmt.Errorf("unsupported network %q", w.Network))
	}

	decimals, raw, err := v.ReadAllowance(ctx, w.Network, w.Address)
	if err != nil {
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"walletId": w.ID,
			"network":  w.Network,
		}).WithError(err).Warn("Allowance verification failed")
		return v.failed(w, err)
	}

	approved := adapter.ToDecimal(raw, decimals)
	status := types.WalletStatusConnected
	if approved.IsPositive() {
		status = types.WalletStatusApproved
	}

	return &models.AllowanceSnapshot{
		Wallet:         w,
		Decimals:       decimals,
		RawAllowance:   raw.String(),
		ApprovedAmount: approved,
		Status:         status,
		LastUpdated:    v.now(),
	}
}

// VerifyAll verifies wallets concurrently. The result has the same order
// as the input and one failure never affects another wallet.
func (v *AllowanceVerifier) VerifyAll(ctx context.Context, wallets []*models.Wallet) []*models.AllowanceSnapshot {
	results := make([]*models.AllowanceSnapshot, len(wallets))

	var g errgroup.Group
	g.SetLimit(v.concurrency)
	for i, w := range wallets {
		g.Go(func() error {
			results[i] = v.Verify(ctx, w)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (v *AllowanceVerifier) failed(w *models.Wallet, err error) *models.AllowanceSnapshot {
	return &models.AllowanceSnapshot{
		Wallet:         w,
		RawAllowance:   "0",
		ApprovedAmount: decimal.Zero,
		Status:         types.WalletStatusError,
		Error:          err.Error(),
		LastUpdated:    v.now(),
	}
}

// recoverChainPanic turns a panic inside an adapter call into an
// unavailable error
func recoverChainPanic(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: panic: %v", adapter.ErrChainUnavailable, r)
	}
}
