package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/service"
)

// IdempotencyKeyHeader lets an admin retry a send without paying twice
const IdempotencyKeyHeader = "Idempotency-Key"

// defaultHistoryWindow is used when no since parameter is given
const defaultHistoryWindow = 7 * 24 * time.Hour

// handleConnectWallet handles POST /api/wallets/connect - Register a wallet
func (s *Server) handleConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address      string `json:"address"`
		Network      string `json:"network"`
		WalletClient string `json:"walletClient"`
	}

	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	wallet, err := s.services.Wallets.Connect(r.Context(), req.Address, req.Network, req.WalletClient)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, wallet)
}

// handleListWallets handles GET /api/wallets - Wallets with live allowance
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.services.Dashboard.ListEnriched(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if snapshots == nil {
		snapshots = []*models.AllowanceSnapshot{}
	}

	respondJSON(w, http.StatusOK, snapshots)
}

// handleWalletAllowance handles GET /api/wallets/{id}/allowance
func (s *Server) handleWalletAllowance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	snapshot, err := s.services.Dashboard.Snapshot(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleSend handles PUT /api/wallets/{id}/send - Pull approved USDT to the
// cold wallet. The recipient always comes from server configuration.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		Recipient string          `json:"recipient"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	logger := logging.FromContext(r.Context()).WithField("walletId", id)
	if req.Recipient != "" {
		logger.WithField("recipient", req.Recipient).Warn("Ignoring client supplied payout recipient")
	}

	result, err := s.services.Payouts.Execute(r.Context(), service.PayoutRequest{
		WalletID:       id,
		Amount:         req.Amount,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader)),
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if claims, ok := adminFromContext(r.Context()); ok {
		logger.WithFields(map[string]interface{}{
			"admin":    claims.Username,
			"txHash":   result.TxHash,
			"replayed": result.Replayed,
		}).Info("Payout sent")
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListPayouts handles GET /api/wallets/{id}/payouts - Payout ledger
func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	payouts, err := s.services.Payouts.ListPayouts(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if payouts == nil {
		payouts = []*models.PayoutRecord{}
	}

	respondJSON(w, http.StatusOK, payouts)
}

// handleWalletHistory handles GET /api/wallets/{id}/history?since=&limit=
func (s *Server) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	query := r.URL.Query()

	since := time.Now().Add(-defaultHistoryWindow)
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("since", "must be an RFC3339 timestamp"))
			return
		}
		since = parsed
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := s.services.Dashboard.History(r.Context(), id, since, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.AllowanceHistoryEntry{}
	}

	respondJSON(w, http.StatusOK, entries)
}
