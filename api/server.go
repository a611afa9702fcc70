// Package api provides the HTTP API server: estimation calculation and
// CRUD, price overrides, admin price management and live refresh.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/estimation"
	"github.com/Priveetee/priceyy/internal/liveapi"
	"github.com/Priveetee/priceyy/internal/pricing"
)

// Config holds server configuration.
type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	httpServer  *http.Server
	catalog     *catalog.Store
	calculator  *estimation.Calculator
	estimations *estimation.Store
	overrides   pricing.OverrideStore
	live        *liveapi.AWSClient
	cfg         Config
	log         zerolog.Logger
}

// NewServer wires the API server. live may be nil when no AWS
// credentials are configured; the refresh endpoint then returns 503.
func NewServer(cat *catalog.Store, calc *estimation.Calculator, est *estimation.Store,
	overrides pricing.OverrideStore, live *liveapi.AWSClient, cfg Config, logger zerolog.Logger) *Server {
	return &Server{
		catalog:     cat,
		calculator:  calc,
		estimations: est,
		overrides:   overrides,
		live:        live,
		cfg:         cfg,
		log:         logger.With().Str("component", "api").Logger(),
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/estimations/calculate", s.handleCalculate)
		r.Post("/estimations", s.handleSaveEstimation)
		r.Get("/estimations", s.handleListEstimations)
		r.Get("/estimations/{id}", s.handleGetEstimation)
		r.Delete("/estimations/{id}", s.handleDeleteEstimation)
		r.Post("/estimations/{id}/recalculate", s.handleRecalculate)
		r.Get("/estimations/{id}/versions", s.handleListVersions)
		r.Get("/estimations/{id}/export", s.handleExportCSV)

		r.Get("/transfer-cost", s.handleTransferCost)

		r.Post("/prices", s.handleCreatePrice)
		r.Get("/prices/{id}/history", s.handlePriceHistory)
		r.Post("/prices/override", s.handleSetOverride)
		r.Delete("/prices/override", s.handleDeleteOverride)
		r.Delete("/sessions/{sessionID}/overrides", s.handleCleanupSession)

		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.log.Info().Int("port", s.cfg.Port).Msg("API server starting")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown runs the server and drains in-flight
// requests on SIGINT/SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-quit:
		s.log.Info().Msg("shutting down API server")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.catalog.DB().PingContext(ctx); err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}
