// Package api exposes the read-only HTTP surface: ranked wallets, per
// wallet detail, and credential pool status.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/walletradar/internal/keypool"
	"github.com/walletradar/internal/types"
)

// WalletReader is the slice of the suggested-wallet repository the
// server needs. Everything here is read-only; rows are written by the
// scoring worker alone.
type WalletReader interface {
	ListTop(ctx context.Context, limit int) ([]*types.SuggestedWallet, error)
	GetByAddress(ctx context.Context, address string) (*types.SuggestedWallet, error)
	Count(ctx context.Context) (int, error)
}

// PoolStatus exposes credential pool health.
type PoolStatus interface {
	Snapshot() []keypool.CredentialStatus
	InGlobalCooldown() bool
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// Server is the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	wallets    WalletReader
	pool       PoolStatus
	log        zerolog.Logger
}

// NewServer creates the API server. pool may be nil when the process
// runs without a credential pool (the status endpoint then 404s).
func NewServer(cfg *ServerConfig, wallets WalletReader, pool PoolStatus, log zerolog.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		wallets: wallets,
		pool:    pool,
		log:     log,
	}

	s.router.Use(s.loggingMiddleware)
	s.router.Use(recoveryMiddleware(log))
	s.router.Use(corsMiddleware)
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/wallets/suggested", s.handleListSuggested).Methods("GET")
	api.HandleFunc("/wallets/{address}", s.handleGetWallet).Methods("GET")
	if s.pool != nil {
		api.HandleFunc("/pool/status", s.handlePoolStatus).Methods("GET")
	}
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("api server shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "walletradar",
	})
}
