package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/server/handler"
	"github.com/alanyoungcy/dutchescrow/internal/server/middleware"
	"github.com/alanyoungcy/dutchescrow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey gates the audit and devnet endpoints. Empty disables the check.
	APIKey          string
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Devnet is nil unless devnet helpers are enabled.
type Handlers struct {
	Health      *handler.HealthHandler
	Auctions    *handler.AuctionHandler
	Settlements *handler.SettlementHandler
	Audit       *handler.AuditHandler
	Devnet      *handler.DevnetHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain applied. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      Routes(cfg, handlers, hub, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Routes builds the handler tree. It is exported for tests.
func Routes(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.Initialize)
	mux.HandleFunc("GET /api/auctions/{seller}", handlers.Auctions.GetAuction)
	mux.HandleFunc("GET /api/auctions/{seller}/quote", handlers.Auctions.GetQuote)
	mux.HandleFunc("POST /api/auctions/{seller}/bid", handlers.Auctions.Bid)
	mux.HandleFunc("POST /api/auctions/{seller}/close", handlers.Auctions.Close)
	mux.HandleFunc("GET /api/addresses/{seller}", handlers.Auctions.GetAddresses)

	mux.HandleFunc("GET /api/settlements", handlers.Settlements.ListSettlements)
	mux.HandleFunc("GET /api/settlements/{id}", handlers.Settlements.GetSettlement)

	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)
	}

	if handlers.Devnet != nil {
		mux.HandleFunc("POST /api/devnet/mints", handlers.Devnet.CreateMint)
		mux.HandleFunc("POST /api/devnet/token-accounts", handlers.Devnet.CreateTokenAccount)
		mux.HandleFunc("POST /api/devnet/mint-to", handlers.Devnet.MintTo)
		mux.HandleFunc("POST /api/devnet/airdrop", handlers.Devnet.Airdrop)
		mux.HandleFunc("GET /api/devnet/balances/{owner}", handlers.Devnet.Balance)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, middleware.PathPrefix("/api/devnet/", "/api/audit"))(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
