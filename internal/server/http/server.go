// Package httpserver provides the HTTP REST API server for the loan service.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/finlend/loan-service/internal/database"
	"github.com/finlend/loan-service/internal/domain"
	"github.com/finlend/loan-service/internal/flags"
	"github.com/finlend/loan-service/internal/observability"
	"github.com/finlend/loan-service/internal/service"
)

// LoanService defines the loan operations exposed over HTTP.
// *service.LoanService satisfies it.
type LoanService interface {
	Simulate(ctx context.Context, in service.SimulateInput) (*domain.Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	Approve(ctx context.Context, id uuid.UUID, actor string) (*domain.Loan, error)
	Reject(ctx context.Context, id uuid.UUID, actor, reason string) (*domain.Loan, error)
	Contract(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	Disburse(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	Pay(ctx context.Context, id uuid.UUID, amount domain.Decimal) (*domain.Loan, error)
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	loans      LoanService
	flags      flags.Provider
	db         *database.DB
	metrics    *observability.Metrics
	logger     zerolog.Logger
	cfg        Config
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath exposes the Prometheus handler when non-empty.
	MetricsPath string
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(
	cfg Config,
	loans LoanService,
	flagProvider flags.Provider,
	db *database.DB,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		loans:   loans,
		flags:   flagProvider,
		db:      db,
		metrics: metrics,
		logger:  logger.With().Str("component", "http-server").Logger(),
		cfg:     cfg,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestObserverMiddleware)

	// Health endpoints
	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Route("/api/v1/loans", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Post("/simulate", s.simulateLoan)
		r.Get("/{loanID}", s.getLoan)
		r.Post("/{loanID}/approve", s.approveLoan)
		r.Post("/{loanID}/reject", s.rejectLoan)
		r.Post("/{loanID}/contract", s.contractLoan)
		r.Post("/{loanID}/disburse", s.disburseLoan)
		r.Post("/{loanID}/pay", s.payLoan)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.db.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}
