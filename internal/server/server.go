// Package server exposes the headless HTTP API: positions, trades, stats,
// manual orders, the paper/live mode switch, and auto-trade control.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cryptostalker/cryptostalker/internal/domain"
	"github.com/cryptostalker/cryptostalker/internal/server/handler"
	"github.com/cryptostalker/cryptostalker/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit gates requests per client IP when Limiter is set.
	Limiter         domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Trades    *handler.TradeHandler
	Orders    *handler.OrderHandler
	AutoTrade *handler.AutoTradeHandler
	Status    *handler.StatusHandler
}

// Server is the headless HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (rate limiting, auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required in the chain below because auth wraps
	// everything; operators running with an API key probe with it).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{symbol}", handlers.Positions.GetPosition)

	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/stats", handlers.Trades.GetStats)

	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("PUT /api/mode", handlers.Status.SetMode)

	mux.HandleFunc("GET /api/autotrade/status", handlers.AutoTrade.GetStatus)
	mux.HandleFunc("POST /api/autotrade/enable", handlers.AutoTrade.Enable)
	mux.HandleFunc("POST /api/autotrade/disable", handlers.AutoTrade.Disable)
	mux.HandleFunc("POST /api/autotrade/pause", handlers.AutoTrade.Pause)
	mux.HandleFunc("POST /api/autotrade/resume", handlers.AutoTrade.Resume)

	var h http.Handler = mux

	if cfg.Limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
