package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/usdt-market/internal/adapter"
	"github.com/usdt-market/internal/chat"
	"github.com/usdt-market/internal/config"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/types"
)

// TrustWalletClient is the wallet client label that gets the fixed approval ceiling
const TrustWalletClient = "trustwallet"

// QuoteRequest asks for the terms of buying from a trader
type QuoteRequest struct {
	TraderID     int64           `json:"traderId"`
	AmountUSDT   decimal.Decimal `json:"amount"`
	Owner        string          `json:"owner,omitempty"`
	WalletClient string          `json:"walletClient,omitempty"`
}

// ApprovalPlan tells the frontend which approve call the user's wallet
// has to sign before the trade
type ApprovalPlan struct {
	Network          types.Network `json:"network"`
	Token            string        `json:"token"`
	Spender          string        `json:"spender"`
	Decimals         uint8         `json:"decimals"`
	ApproveAmount    string        `json:"approveAmount"`
	ApproveRaw       string        `json:"approveRaw"`
	Method           string        `json:"method"`
	Calldata         string        `json:"calldata"`
	CurrentAllowance string        `json:"currentAllowance,omitempty"`
	ApprovalRequired bool          `json:"approvalRequired"`
}

// Quote is the priced trade offer
type Quote struct {
	TraderID        int64         `json:"traderId"`
	TraderName      string        `json:"traderName"`
	AmountUSDT      string        `json:"amountUsdt"`
	PricePerUSDT    string        `json:"pricePerUsdt"`
	FiatAmount      string        `json:"fiatAmount"`
	Currency        string        `json:"currency"`
	CurrencySymbol  string        `json:"currencySymbol"`
	PlatformFee     float64       `json:"platformFee"`
	Approval        *ApprovalPlan `json:"approval"`
	EscrowExpiresAt time.Time     `json:"escrowExpiresAt"`
	ChatRoom        string        `json:"chatRoom"`
}

// TradeService prices trades and plans the allowance approval
type TradeService struct {
	traders   TraderStore
	settings  SettingsStore
	verifier  *AllowanceVerifier
	adapters  ChainAdapters
	contracts Contracts
	cfg       config.TradeConfig
	now       func() time.Time
}

// NewTradeService creates a new trade service
func NewTradeService(traders TraderStore, settings SettingsStore, verifier *AllowanceVerifier, adapters ChainAdapters, contracts Contracts, cfg config.TradeConfig) *TradeService {
	if cfg.EscrowDuration <= 0 {
		cfg.EscrowDuration = 30 * time.Minute
	}
	if cfg.TrustWalletApprovalUSDT <= 0 {
		cfg.TrustWalletApprovalUSDT = 1_000_000
	}
	return &TradeService{
		traders:   traders,
		settings:  settings,
		verifier:  verifier,
		adapters:  adapters,
		contracts: contracts,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Quote validates the amount against settings and trader limits and
// returns the fiat price with an approval plan
func (s *TradeService) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load settings", err)
	}
	if settings.MaintenanceMode {
		return nil, apperrors.NewMaintenanceError()
	}

	trader, err := s.traders.GetByID(ctx, req.TraderID)
	if err != nil {
		return nil, storeError(err, "Trader", req.TraderID, "load trader")
	}

	amount := req.AmountUSDT
	if !amount.IsPositive() {
		return nil, apperrors.NewInvalidParameterError("amount", "must be greater than 0")
	}
	minAmount := decimal.NewFromFloat(settings.MinTradeAmount)
	if amount.LessThan(minAmount) {
		return nil, apperrors.NewInvalidParameterError("amount", fmt.Sprintf("minimum trade amount is %s USDT", minAmount))
	}
	if trader.Limit > 0 {
		limit := decimal.NewFromFloat(trader.Limit)
		if amount.GreaterThan(limit) {
			return nil, apperrors.NewInvalidParameterError("amount", fmt.Sprintf("trader limit is %s USDT", limit))
		}
	}

	owner := strings.TrimSpace(req.Owner)
	if owner != "" && !adapter.ValidateAddress(trader.Network, owner) {
		return nil, apperrors.NewInvalidParameterError("owner", fmt.Sprintf("not a valid %s address", trader.Network))
	}

	plan, err := s.plan(ctx, trader.Network, owner, amount, req.WalletClient)
	if err != nil {
		return nil, err
	}

	price := decimal.NewFromFloat(trader.PricePerUSDT)
	return &Quote{
		TraderID:        trader.ID,
		TraderName:      trader.Name,
		AmountUSDT:      amount.String(),
		PricePerUSDT:    price.String(),
		FiatAmount:      amount.Mul(price).StringFixed(2),
		Currency:        trader.Currency,
		CurrencySymbol:  trader.CurrencySymbol,
		PlatformFee:     settings.PlatformFee,
		Approval:        plan,
		EscrowExpiresAt: s.now().Add(s.cfg.EscrowDuration).UTC(),
		ChatRoom:        chat.RoomName(trader.ID, owner),
	}, nil
}

// plan builds the approve call for the trade amount, or the fixed ceiling
// for Trust Wallet. With a known owner the current allowance decides
// whether approval is still needed.
func (s *TradeService) plan(ctx context.Context, network types.Network, owner string, amount decimal.Decimal, walletClient string) (*ApprovalPlan, error) {
	nc, err := s.contracts.resolve(network)
	if err != nil {
		return nil, err
	}

	var decimals uint8
	var current *big.Int
	if owner != "" {
		decimals, current, err = s.verifier.ReadAllowance(ctx, network, owner)
		if err != nil {
			return nil, err
		}
	} else {
		chain, err := adapterFor(s.adapters, network)
		if err != nil {
			return nil, err
		}
		decimals, err = chain.Decimals(ctx, nc.Token)
		if err != nil {
			return nil, chainError(network, err)
		}
	}

	approveAmount := amount
	if strings.EqualFold(strings.TrimSpace(walletClient), TrustWalletClient) {
		// the fixed ceiling is never approved below the trade itself
		approveAmount = decimal.Max(amount, decimal.NewFromInt(s.cfg.TrustWalletApprovalUSDT))
	}
	approveRaw := adapter.ToRaw(approveAmount, decimals)

	data, err := adapter.EncodeApprove(network, nc.Spender, approveRaw)
	if err != nil {
		return nil, chainError(network, err)
	}

	plan := &ApprovalPlan{
		Network:          network,
		Token:            nc.Token,
		Spender:          nc.Spender,
		Decimals:         decimals,
		ApproveAmount:    approveAmount.String(),
		ApproveRaw:       approveRaw.String(),
		Method:           adapter.ApproveSelector,
		Calldata:         "0x" + hex.EncodeToString(data),
		ApprovalRequired: true,
	}
	if current != nil {
		plan.CurrentAllowance = adapter.ToDecimal(current, decimals).String()
		plan.ApprovalRequired = current.Cmp(adapter.ToRaw(amount, decimals)) < 0
	}
	return plan, nil
}
