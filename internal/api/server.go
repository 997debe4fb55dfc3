// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/usdt-market/internal/chat"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/models"
	"github.com/usdt-market/internal/service"
)

// Service interfaces for dependency injection and testing

// AuthServiceInterface issues and checks admin tokens
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (string, error)
	ParseToken(token string) (*service.AdminClaims, error)
}

// WalletServiceInterface registers wallets
type WalletServiceInterface interface {
	Connect(ctx context.Context, address, network, walletClient string) (*models.Wallet, error)
}

// DashboardServiceInterface serves the admin wallet views
type DashboardServiceInterface interface {
	ListEnriched(ctx context.Context) ([]*models.AllowanceSnapshot, error)
	Snapshot(ctx context.Context, walletID int64) (*models.AllowanceSnapshot, error)
	Stats(ctx context.Context) (*service.DashboardStats, error)
	History(ctx context.Context, walletID int64, since time.Time, limit int) ([]*models.AllowanceHistoryEntry, error)
}

// PayoutServiceInterface executes relayed transfers
type PayoutServiceInterface interface {
	Execute(ctx context.Context, req service.PayoutRequest) (*service.PayoutResult, error)
	ListPayouts(ctx context.Context, walletID int64) ([]*models.PayoutRecord, error)
}

// CatalogServiceInterface manages traders and ads
type CatalogServiceInterface interface {
	ListTraders(ctx context.Context) ([]*models.Trader, error)
	CreateTrader(ctx context.Context, t *models.Trader) (*models.Trader, error)
	UpdateTrader(ctx context.Context, id int64, t *models.Trader) (*models.Trader, error)
	SetTraderOnline(ctx context.Context, id int64, online bool) (*models.Trader, error)
	DeleteTrader(ctx context.Context, id int64) error
	ListAds(ctx context.Context) ([]*models.Ad, error)
	CreateAd(ctx context.Context, a *models.Ad) (*models.Ad, error)
	UpdateAd(ctx context.Context, id int64, a *models.Ad) (*models.Ad, error)
	SetAdActive(ctx context.Context, id int64, active bool) (*models.Ad, error)
	DeleteAd(ctx context.Context, id int64) error
}

// TicketServiceInterface manages support tickets
type TicketServiceInterface interface {
	Create(ctx context.Context, t *models.Ticket) (*models.Ticket, error)
	List(ctx context.Context) ([]*models.Ticket, error)
	SetStatus(ctx context.Context, id int64, status string) (*models.Ticket, error)
	Delete(ctx context.Context, id int64) error
}

// SettingsServiceInterface reads and updates marketplace settings
type SettingsServiceInterface interface {
	Get(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, u service.SettingsUpdate) (*models.Settings, error)
}

// TradeServiceInterface prices trades
type TradeServiceInterface interface {
	Quote(ctx context.Context, req service.QuoteRequest) (*service.Quote, error)
}

// Services bundles the dependencies of the HTTP layer
type Services struct {
	Auth      AuthServiceInterface
	Wallets   WalletServiceInterface
	Dashboard DashboardServiceInterface
	Payouts   PayoutServiceInterface
	Catalog   CatalogServiceInterface
	Tickets   TicketServiceInterface
	Settings  SettingsServiceInterface
	Trades    TradeServiceInterface
	Chat      *chat.Hub
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	services   Services
	upgrader   websocket.Upgrader
	config     *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	PublicRPS       int // Requests per second per client IP
	AdminRPS        int // Requests per second for bearer token holders
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, services Services) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.PublicRPS, s.config.AdminRPS)

	// Order matters: the request id must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(MetricsMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	// CORS wraps the router so preflight requests never reach method matching
	s.handler = CORSMiddleware(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws/chat", s.handleChatSocket).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Admin
	api.HandleFunc("/admin/login", s.handleLogin).Methods("POST")
	api.Handle("/admin/stats", s.requireAdmin(s.handleStats)).Methods("GET")
	api.Handle("/chat/rooms", s.requireAdmin(s.handleChatRooms)).Methods("GET")

	// Wallets
	api.HandleFunc("/wallets/connect", s.handleConnectWallet).Methods("POST")
	api.Handle("/wallets", s.requireAdmin(s.handleListWallets)).Methods("GET")
	api.Handle("/wallets/{id}/allowance", s.requireAdmin(s.handleWalletAllowance)).Methods("GET")
	api.Handle("/wallets/{id}/send", s.requireAdmin(s.handleSend)).Methods("PUT")
	api.Handle("/wallets/{id}/payouts", s.requireAdmin(s.handleListPayouts)).Methods("GET")
	api.Handle("/wallets/{id}/history", s.requireAdmin(s.handleWalletHistory)).Methods("GET")

	// Traders
	api.HandleFunc("/traders", s.handleListTraders).Methods("GET")
	api.Handle("/traders", s.requireAdmin(s.handleCreateTrader)).Methods("POST")
	api.Handle("/traders/{id}", s.requireAdmin(s.handleUpdateTrader)).Methods("PUT")
	api.Handle("/traders/{id}", s.requireAdmin(s.handleDeleteTrader)).Methods("DELETE")
	api.Handle("/traders/{id}/status", s.requireAdmin(s.handleTraderStatus)).Methods("PUT")

	// Ads
	api.HandleFunc("/ads", s.handleListAds).Methods("GET")
	api.Handle("/ads", s.requireAdmin(s.handleCreateAd)).Methods("POST")
	api.Handle("/ads/{id}", s.requireAdmin(s.handleUpdateAd)).Methods("PUT")
	api.Handle("/ads/{id}", s.requireAdmin(s.handleDeleteAd)).Methods("DELETE")
	api.Handle("/ads/{id}/status", s.requireAdmin(s.handleAdStatus)).Methods("PUT")

	// Tickets
	api.HandleFunc("/tickets", s.handleCreateTicket).Methods("POST")
	api.Handle("/tickets", s.requireAdmin(s.handleListTickets)).Methods("GET")
	api.Handle("/tickets/{id}/status", s.requireAdmin(s.handleTicketStatus)).Methods("PUT")
	api.Handle("/tickets/{id}", s.requireAdmin(s.handleDeleteTicket)).Methods("DELETE")

	// Settings
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.Handle("/settings", s.requireAdmin(s.handleUpdateSettings)).Methods("PUT")

	// Trades
	api.HandleFunc("/trades/quote", s.handleQuote).Methods("POST")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "usdt-market",
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
