package api

import (
	"net/http"

	"github.com/usdt-market/internal/chat"
	"github.com/usdt-market/internal/logging"
)

// handleLogin handles POST /api/admin/login - Exchange credentials for a token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := parseJSONBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}

	token, err := s.services.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleStats handles GET /api/admin/stats - Counters plus a full allowance scan
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.services.Dashboard.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleChatRooms handles GET /api/chat/rooms - Active rooms for the admin panel
func (s *Server) handleChatRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.services.Chat.Rooms()
	if rooms == nil {
		rooms = []chat.RoomInfo{}
	}
	respondJSON(w, http.StatusOK, rooms)
}

// handleChatSocket handles GET /ws/chat - Upgrade to the chat websocket.
// A token query parameter marks the connection as the admin side.
func (s *Server) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	senderType := chat.SenderUser
	if token := r.URL.Query().Get("token"); token != "" {
		if _, err := s.services.Auth.ParseToken(token); err != nil {
			respondError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "Invalid or expired token", nil)
			return
		}
		senderType = chat.SenderAdmin
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already answered the client
		logging.FromContext(r.Context()).WithError(err).Warn("Websocket upgrade failed")
		return
	}

	s.services.Chat.Serve(conn, senderType, r.URL.Query().Get("room"))
}
