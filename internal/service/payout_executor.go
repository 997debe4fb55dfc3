package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/config"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/metrics"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/storage"
	"github.com/usdt-market/internal/types"
)

// WalletReader loads registered wallets
type WalletReader interface {
	GetByID(ctx context.Context, id int64) (*models.Wallet, error)
}

// PayoutLedger persists payout attempts
type PayoutLedger interface {
	CreatePending(ctx context.Context, p *models.PayoutRecord) error
	MarkSubmitted(ctx context.Context, id, txHash string) error
	MarkFailed(ctx context.Context, id, reason string) error
	GetByIdempotencyKey(ctx context.Context, key string) (*models.PayoutRecord, error)
	HasPending(ctx context.Context, walletID int64) (bool, error)
	ListByWallet(ctx context.Context, walletID int64) ([]*models.PayoutRecord, error)
}

// Locker is a cross-process lock. TryLock returns "" when the key is held.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// PayoutRequest asks to pull amount USDT from a wallet's allowance.
// The recipient is never part of the request.
type PayoutRequest struct {
	WalletID       int64
	Amount         decimal.Decimal
	IdempotencyKey string
}

// PayoutResult describes a submitted relayed transfer
type PayoutResult struct {
	PayoutID  string        `json:"payoutId"`
	TxHash    string        `json:"txHash"`
	WalletID  int64         `json:"walletId"`
	Network   types.Network `json:"network"`
	Recipient string        `json:"recipient"`
	Amount    string        `json:"amount"`
	Replayed  bool          `json:"replayed"`
}

// PayoutExecutor moves approved USDT from a user wallet to the admin cold
// wallet through the spender contract
type PayoutExecutor struct {
	wallets     WalletReader
	ledger      PayoutLedger
	verifier    *AllowanceVerifier
	adapters    ChainAdapters
	contracts   Contracts
	coldWallets config.ColdWalletConfig
	locker      Locker
	lockTTL     time.Duration

	mu       sync.Mutex
	inflight map[int64]struct{}
}

// NewPayoutExecutor creates a new payout executor. locker may be nil, in
// which case payouts are serialized within this process only.
func NewPayoutExecutor(
	wallets WalletReader,
	ledger PayoutLedger,
	verifier *AllowanceVerifier,
	adapters ChainAdapters,
	contracts Contracts,
	coldWallets config.ColdWalletConfig,
	locker Locker,
	lockTTL time.Duration,
) *PayoutExecutor {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &PayoutExecutor{
		wallets:     wallets,
		ledger:      ledger,
		verifier:    verifier,
		adapters:    adapters,
		contracts:   contracts,
		coldWallets: coldWallets,
		locker:      locker,
		lockTTL:     lockTTL,
		inflight:    make(map[int64]struct{}),
	}
}

// Execute runs one payout. Nothing is retried: a failed submission is
// recorded and returned.
func (e *PayoutExecutor) Execute(ctx context.Context, req PayoutRequest) (*PayoutResult, error) {
	start := time.Now()
	logger := logging.FromContext(ctx).WithField("walletId", req.WalletID)

	if !req.Amount.IsPositive() {
		return nil, apperrors.NewInvalidParameterError("amount", "must be greater than 0")
	}

	if req.IdempotencyKey != "" {
		if res, err, found := e.replay(ctx, req); found {
			return res, err
		}
	}

	wallet, err := e.wallets.GetByID(ctx, req.WalletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Wallet", strconv.FormatInt(req.WalletID, 10))
		}
		return nil, apperrors.NewDatabaseError("load wallet", err)
	}
	network := wallet.Network
	logger = logger.WithField("network", network)

	recipient := e.coldWallets.ForFamily(network.Family())
	if recipient == "" {
		if network.Family() == types.FamilyTron {
			return nil, apperrors.NewConfigurationMissingError("ADMIN_COLD_WALLET_TRON")
		}
		return nil, apperrors.NewConfigurationMissingError("ADMIN_COLD_WALLET_EVM")
	}
	nc, err := e.contracts.resolve(network)
	if err != nil {
		return nil, err
	}
	chain, err := adapterFor(e.adapters, network)
	if err != nil {
		return nil, err
	}

	release, err := e.acquire(ctx, wallet.ID)
	if err != nil {
		metrics.PayoutsTotal.WithLabelValues(string(network), metrics.OutcomeBusy).Inc()
		return nil, err
	}
	defer release()

	pending, err := e.ledger.HasPending(ctx, wallet.ID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("check pending payouts", err)
	}
	if pending {
		logger.Warn("Unresolved pending payout blocks new payouts for wallet")
		metrics.PayoutsTotal.WithLabelValues(string(network), metrics.OutcomeBusy).Inc()
		return nil, apperrors.NewPayoutInProgressError(wallet.ID)
	}

	decimals, allowance, err := e.verifier.ReadAllowance(ctx, network, wallet.Address)
	if err != nil {
		metrics.PayoutsTotal.WithLabelValues(string(network), outcomeFor(err)).Inc()
		return nil, err
	}

	rawAmount := adapter.ToRaw(req.Amount, decimals)
	if rawAmount.Sign() <= 0 {
		return nil, apperrors.NewInvalidParameterError("amount", "below token precision")
	}
	if allowance.Cmp(rawAmount) < 0 {
		has := adapter.FormatAmount(adapter.ToDecimal(allowance, decimals))
		metrics.PayoutsTotal.WithLabelValues(string(network), metrics.OutcomeInsufficient).Inc()
		return nil, apperrors.NewInsufficientAllowanceError(has, req.Amount.String())
	}

	record := &models.PayoutRecord{
		WalletID:  wallet.ID,
		Network:   network,
		Owner:     wallet.Address,
		Recipient: recipient,
		Amount:    req.Amount,
		RawAmount: rawAmount.String(),
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		record.IdempotencyKey = &key
	}
	if err := e.ledger.CreatePending(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, apperrors.NewConflictError("Idempotency-Key already used")
		}
		return nil, apperrors.NewDatabaseError("record payout", err)
	}

	txHash, err := chain.ExecuteRelayedTransfer(ctx, nc.Spender, wallet.Address, recipient, rawAmount)
	if err != nil {
		// The ledger keeps the failure even when the request was cancelled
		if markErr := e.ledger.MarkFailed(context.WithoutCancel(ctx), record.ID, err.Error()); markErr != nil {
			logger.WithError(markErr).Error("Failed to mark payout failed; record stays pending")
		}
		logger.WithField("payoutId", record.ID).WithError(err).Error("Relayed transfer failed")
		metrics.PayoutsTotal.WithLabelValues(string(network), outcomeFor(err)).Inc()
		return nil, chainError(network, err)
	}

	if err := e.ledger.MarkSubmitted(context.WithoutCancel(ctx), record.ID, txHash); err != nil {
		logger.WithField("txHash", txHash).WithError(err).Error("Failed to mark payout submitted; record stays pending")
	}

	metrics.PayoutsTotal.WithLabelValues(string(network), metrics.OutcomeSubmitted).Inc()
	metrics.PayoutLatency.WithLabelValues(string(network)).Observe(time.Since(start).Seconds())
	logger.WithFields(map[string]interface{}{
		"payoutId": record.ID,
		"txHash":   txHash,
		"amount":   req.Amount.String(),
	}).Info("Payout submitted")

	return &PayoutResult{
		PayoutID:  record.ID,
		TxHash:    txHash,
		WalletID:  wallet.ID,
		Network:   network,
		Recipient: recipient,
		Amount:    req.Amount.String(),
	}, nil
}

// ListPayouts returns the ledger entries of a wallet
func (e *PayoutExecutor) ListPayouts(ctx context.Context, walletID int64) ([]*models.PayoutRecord, error) {
	if _, err := e.wallets.GetByID(ctx, walletID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Wallet", strconv.FormatInt(walletID, 10))
		}
		return nil, apperrors.NewDatabaseError("load wallet", err)
	}
	records, err := e.ledger.ListByWallet(ctx, walletID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payouts", err)
	}
	return records, nil
}

// replay answers a request whose idempotency key was seen before.
// found is false when the key is new.
func (e *PayoutExecutor) replay(ctx context.Context, req PayoutRequest) (*PayoutResult, error, bool) {
	record, err := e.ledger.GetByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, false
		}
		return nil, apperrors.NewDatabaseError("load payout", err), true
	}

	if record.WalletID != req.WalletID || !record.Amount.Equal(req.Amount) {
		return nil, apperrors.NewConflictError("Idempotency-Key was used for a different payout"), true
	}

	switch record.Status {
	case types.PayoutStatusSubmitted:
		metrics.PayoutsTotal.WithLabelValues(string(record.Network), metrics.OutcomeReplayed).Inc()
		res := &PayoutResult{
			PayoutID:  record.ID,
			WalletID:  record.WalletID,
			Network:   record.Network,
			Recipient: record.Recipient,
			Amount:    record.Amount.String(),
			Replayed:  true,
		}
		if record.TxHash != nil {
			res.TxHash = *record.TxHash
		}
		return res, nil, true
	case types.PayoutStatusPending:
		return nil, apperrors.NewPayoutInProgressError(record.WalletID), true
	default:
		reason := "unknown error"
		if record.Error != nil {
			reason = *record.Error
		}
		return nil, apperrors.NewConflictError(fmt.Sprintf("payout with this Idempotency-Key failed (%s); retry with a new key", reason)), true
	}
}

// acquire takes the per-wallet guard in process and, when configured, in Redis
func (e *PayoutExecutor) acquire(ctx context.Context, walletID int64) (func(), error) {
	e.mu.Lock()
	if _, busy := e.inflight[walletID]; busy {
		e.mu.Unlock()
		return nil, apperrors.NewPayoutInProgressError(walletID)
	}
	e.inflight[walletID] = struct{}{}
	e.mu.Unlock()

	releaseLocal := func() {
		e.mu.Lock()
		delete(e.inflight, walletID)
		e.mu.Unlock()
	}

	if e.locker == nil {
		return releaseLocal, nil
	}

	key := fmt.Sprintf("payout:lock:%d", walletID)
	token, err := e.locker.TryLock(ctx, key, e.lockTTL)
	if err != nil {
		releaseLocal()
		return nil, apperrors.NewInternalError("payout lock unavailable", err)
	}
	if token == "" {
		releaseLocal()
		return nil, apperrors.NewPayoutInProgressError(walletID)
	}

	return func() {
		if err := e.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			logging.FromContext(ctx).WithField("walletId", walletID).WithError(err).Warn("Failed to release payout lock")
		}
		releaseLocal()
	}, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, adapter.ErrChainUnavailable), apperrors.HasCode(err, apperrors.CodeChainUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, adapter.ErrTransactionRejected):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
