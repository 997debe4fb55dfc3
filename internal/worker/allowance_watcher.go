package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/types"
)

// DefaultWatchInterval is used when no interval is configured
const DefaultWatchInterval = 5 * time.Minute

// WalletLister lists every registered wallet
type WalletLister interface {
	List(ctx context.Context) ([]*models.Wallet, error)
}

// Verifier produces one snapshot per wallet, in input order
type Verifier interface {
	VerifyAll(ctx context.Context, wallets []*models.Wallet) []*models.AllowanceSnapshot
}

// HistoryWriter appends snapshot rows to the history store
type HistoryWriter interface {
	AppendBatch(ctx context.Context, entries []*models.AllowanceHistoryEntry) error
}

// PassResult summarizes one watcher pass
type PassResult struct {
	Wallets  int
	Approved map[types.Network]int
	Volume   map[types.Network]decimal.Decimal
	Errors   int
	Recorded bool
}

// AllowanceWatcher periodically re-verifies every wallet and records the
// snapshots
type AllowanceWatcher struct {
	wallets  WalletLister
	verifier Verifier
	history  HistoryWriter
	interval time.Duration

	running  bool
	lastPass time.Time
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// AllowanceWatcherConfig holds configuration for an allowance watcher
type AllowanceWatcherConfig struct {
	Wallets  WalletLister
	Verifier Verifier
	// History is optional; nil skips recording
	History  HistoryWriter
	Interval time.Duration
}

// NewAllowanceWatcher creates a new allowance watcher
func NewAllowanceWatcher(cfg *AllowanceWatcherConfig) (*AllowanceWatcher, error) {
	if cfg.Wallets == nil {
		return nil, fmt.Errorf("wallet lister cannot be nil")
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}

	return &AllowanceWatcher{
		wallets:  cfg.Wallets,
		verifier: cfg.Verifier,
		history:  cfg.History,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs one pass immediately and then one per interval
func (w *AllowanceWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("allowance watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	logging.WithFields(map[string]interface{}{
		"interval": w.interval.String(),
		"history":  w.history != nil,
	}).Info("Starting allowance watcher")

	go w.loop(ctx)
	return nil
}

// Stop signals the loop and waits for the pass in progress to finish.
// After a timeout Stop may be called again to keep waiting.
func (w *AllowanceWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("allowance watcher is not running")
	}
	w.mu.Unlock()

	w.stopOnce.Do(func() { close(w.stopCh) })

	select {
	case <-w.doneCh:
		logging.Info("Allowance watcher stopped gracefully")
	case <-ctx.Done():
		logging.Warn("Allowance watcher stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

// LastPass returns when the last pass started
func (w *AllowanceWatcher) LastPass() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastPass
}

func (w *AllowanceWatcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *AllowanceWatcher) tick(ctx context.Context) {
	w.mu.Lock()
	w.lastPass = time.Now()
	w.mu.Unlock()

	result, err := w.RunPass(ctx)
	if err != nil {
		logging.WithError(err).Error("Allowance watcher pass failed")
		return
	}

	logging.WithFields(map[string]interface{}{
		"wallets":  result.Wallets,
		"errors":   result.Errors,
		"recorded": result.Recorded,
	}).Info("Allowance watcher pass complete")
}

// RunPass verifies every wallet once, updates the gauges and appends the
// snapshots to history. A history write failure is logged and counted but
// does not fail the pass.
func (w *AllowanceWatcher) RunPass(ctx context.Context) (*PassResult, error) {
	wallets, err := w.wallets.List(ctx)
	if err != nil {
		metrics.WatcherPassErrors.Inc()
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	snapshots := w.verifier.VerifyAll(ctx, wallets)

	result := &PassResult{
		Wallets:  len(wallets),
		Approved: make(map[types.Network]int, len(types.AllNetworks)),
		Volume:   make(map[types.Network]decimal.Decimal, len(types.AllNetworks)),
	}
	for _, n := range types.AllNetworks {
		result.Volume[n] = decimal.Zero
	}

	entries := make([]*models.AllowanceHistoryEntry, 0, len(snapshots))
	for _, s := range snapshots {
		if s == nil || s.Wallet == nil {
			continue
		}
		network := s.Wallet.Network
		switch {
		case s.Approved():
			result.Approved[network]++
			result.Volume[network] = result.Volume[network].Add(s.ApprovedAmount)
		case s.Status == types.WalletStatusError:
			result.Errors++
		}
		entries = append(entries, historyEntry(s))
	}

	for _, n := range types.AllNetworks {
		metrics.WatcherApprovedWallets.WithLabelValues(string(n)).Set(float64(result.Approved[n]))
		volume, _ := result.Volume[n].Float64()
		metrics.WatcherApprovedVolume.WithLabelValues(string(n)).Set(volume)
	}

	if w.history != nil && len(entries) > 0 {
		if err := w.history.AppendBatch(ctx, entries); err != nil {
			metrics.WatcherPassErrors.Inc()
			logging.WithError(err).WithField("entries", len(entries)).Warn("Failed to record allowance history")
		} else {
			result.Recorded = true
		}
	}

	return result, nil
}

func historyEntry(s *models.AllowanceSnapshot) *models.AllowanceHistoryEntry {
	checkedAt := s.LastUpdated
	if checkedAt.IsZero() {
		checkedAt = time.Now().UTC()
	}
	return &models.AllowanceHistoryEntry{
		WalletID:       s.Wallet.ID,
		Address:        s.Wallet.Address,
		Network:        string(s.Wallet.Network),
		Decimals:       s.Decimals,
		RawAllowance:   s.RawAllowance,
		ApprovedAmount: s.ApprovedAmount.String(),
		Status:         s.Status,
		Error:          s.Error,
		CheckedAt:      checkedAt,
	}
}
