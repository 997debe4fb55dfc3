package api

import (
	"net/http"

	"github.com/usdt-market/internal/models"
)

// handleListTraders handles GET /api/traders
func (s *Server) handleListTraders(w http.ResponseWriter, r *http.Request) {
	traders, err := s.services.Catalog.ListTraders(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if traders == nil {
		traders = []*models.Trader{}
	}
	respondJSON(w, http.StatusOK, traders)
}

// handleCreateTrader handles POST /api/traders
func (s *Server) handleCreateTrader(w http.ResponseWriter, r *http.Request) {
	var trader models.Trader
	if err := parseJSONBody(w, r, &trader); err != nil {
		respondBadBody(w, err)
		return
	}

	created, err := s.services.Catalog.CreateTrader(r.Context(), &trader)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// handleUpdateTrader handles PUT /api/traders/{id}
func (s *Server) handleUpdateTrader(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var trader models.Trader
	if err := parseJSONBody(w, r, &trader); err != nil {
		respondBadBody(w, err)
		return
	}

	updated, err := s.services.Catalog.UpdateTrader(r.Context(), id, &trader)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handleTraderStatus handles PUT /api/traders/{id}/status - Toggle online
func (s *Server) handleTraderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req struct {
		Online bool `json:"online"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	updated, err := s.services.Catalog.SetTraderOnline(r.Context(), id, req.Online)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handleDeleteTrader handles DELETE /api/traders/{id}
func (s *Server) handleDeleteTrader(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.services.Catalog.DeleteTrader(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}

// handleListAds handles GET /api/ads
func (s *Server) handleListAds(w http.ResponseWriter, r *http.Request) {
	ads, err := s.services.Catalog.ListAds(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if ads == nil {
		ads = []*models.Ad{}
	}
	respondJSON(w, http.StatusOK, ads)
}

// handleCreateAd handles POST /api/ads
func (s *Server) handleCreateAd(w http.ResponseWriter, r *http.Request) {
	var ad models.Ad
	if err := parseJSONBody(w, r, &ad); err != nil {
		respondBadBody(w, err)
		return
	}

	created, err := s.services.Catalog.CreateAd(r.Context(), &ad)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

// handleUpdateAd handles PUT /api/ads/{id}
func (s *Server) handleUpdateAd(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var ad models.Ad
	if err := parseJSONBody(w, r, &ad); err != nil {
		respondBadBody(w, err)
		return
	}

	updated, err := s.services.Catalog.UpdateAd(r.Context(), id, &ad)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handleAdStatus handles PUT /api/ads/{id}/status - Toggle active
func (s *Server) handleAdStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	updated, err := s.services.Catalog.SetAdActive(r.Context(), id, req.Active)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// handleDeleteAd handles DELETE /api/ads/{id}
func (s *Server) handleDeleteAd(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if err := s.services.Catalog.DeleteAd(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "id": id})
}
