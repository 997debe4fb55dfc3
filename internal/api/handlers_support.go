package api

import (
	"net/http"

	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/service"
)

// handleCreateTicket handles POST /api/tickets - Public support form
func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		WalletAddress string `json:"walletAddress"`
		Subject       string `json:"subject"`
		Message       string `json:"message"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	ticket, err := s.services.Tickets.Create(r.Context(), &models.Ticket{
		Name:          req.Name,
		Email:         req.Email,
		WalletAddress: req.WalletAddress,
		Subject:       req.Subject,
		Message:       req.Message,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, ticket)
}

// handleListTickets handles GET /api/tickets
func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.services.Tickets.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []*models.Ticket{}
	}
	respondJSON(w, http.StatusOK, tickets)
}

// handleTicketStatus handles PUT /api/tickets/{id}/status
func (s *Server) handleTicketStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	ticket, err := s.services.Tickets.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ticket)
}

// handleDeleteTicket handles DELETE /api/tickets/{id}
func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.services.Tickets.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

// handleGetSettings handles GET /api/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.services.Settings.Get(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// handleUpdateSettings handles PUT /api/settings - Partial update
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update service.SettingsUpdate
	if err := parseJSONBody(w, r, &update); err != nil {
		respondBadBody(w, err)
		return
	}

	settings, err := s.services.Settings.Update(r.Context(), update)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

// handleQuote handles POST /api/trades/quote - Price a trade and plan the approval
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req service.QuoteRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	quote, err := s.services.Trades.Quote(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, quote)
}
