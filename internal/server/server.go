// Package server exposes the orchestrators over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/server/handler"
	"github.com/alanyoungcy/fheauction/internal/server/middleware"
	"github.com/alanyoungcy/fheauction/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimiter, when set, limits each client IP to RateLimit requests
	// per RateWindow.
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Auctions *handler.AuctionHandler
	Sessions *handler.SessionHandler
	Notices  *handler.NoticeHandler
}

// Server is the HTTP + WebSocket API of the auction orchestrator.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware
// chain. Mutations wait for mined transactions, so the write timeout is
// left to the per-request chain bounds.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := Routes(handlers, wsHub)

	var h http.Handler = mux
	if cfg.RateLimiter != nil {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the request multiplexer without middleware.
func Routes(handlers Handlers, wsHub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions/{id}/archive", handlers.Auctions.GetArchive)
	mux.HandleFunc("GET /api/archives", handlers.Auctions.ListArchives)
	mux.HandleFunc("POST /api/auctions/{id}/ledger", handlers.Auctions.ExportLedger)
	mux.HandleFunc("GET /api/auctions/{id}/transactions", handlers.Auctions.ListTransactions)

	mux.HandleFunc("POST /api/sessions", handlers.Sessions.Open)
	mux.HandleFunc("PUT /api/sessions/{id}", handlers.Sessions.Switch)
	mux.HandleFunc("DELETE /api/sessions/{id}", handlers.Sessions.Close)
	mux.HandleFunc("GET /api/sessions/{id}/snapshot", handlers.Sessions.GetSnapshot)
	mux.HandleFunc("POST /api/sessions/{id}/reload", handlers.Sessions.Reload)
	mux.HandleFunc("POST /api/sessions/{id}/lock", handlers.Sessions.LockFunds)
	mux.HandleFunc("GET /api/sessions/{id}/bids", handlers.Sessions.ListBids)
	mux.HandleFunc("POST /api/sessions/{id}/bids", handlers.Sessions.PlaceBid)
	mux.HandleFunc("POST /api/sessions/{id}/decrypt", handlers.Sessions.DecryptMyBid)
	mux.HandleFunc("POST /api/sessions/{id}/settle", handlers.Sessions.Settle)
	mux.HandleFunc("GET /api/sessions/{id}/decrypted-bids", handlers.Sessions.ListDecryptedBids)

	mux.HandleFunc("GET /api/notices", handlers.Notices.ListNotices)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	return mux
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
