// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/service"
)

// PortfolioServiceInterface defines the portfolio and version operations
// exposed over HTTP
type PortfolioServiceInterface interface {
	CreatePortfolio(ctx context.Context, in service.CreatePortfolioInput) (*service.MutationResult, error)
	UpdatePortfolio(ctx context.Context, id uuid.UUID, in service.UpdatePortfolioInput) (*service.MutationResult, error)
	DeletePortfolio(ctx context.Context, id uuid.UUID, actor string) error
	GetPortfolio(ctx context.Context, id uuid.UUID) (*service.PortfolioDetail, error)
	ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error)

	AddConstituent(ctx context.Context, portfolioID uuid.UUID, c *models.Constituent, m service.ConstituentMutation) (*service.MutationResult, error)
	RemoveConstituent(ctx context.Context, portfolioID uuid.UUID, key models.AssetKey, m service.ConstituentMutation) (*service.MutationResult, error)
	Rebalance(ctx context.Context, portfolioID uuid.UUID, m service.ConstituentMutation) (*service.MutationResult, error)
	RecordManualEdit(ctx context.Context, id uuid.UUID, actor string, reason string, approvedBy *string) (*service.MutationResult, error)

	History(ctx context.Context, portfolioID uuid.UUID) ([]models.VersionSummary, error)
	GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error)
	LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error)
	Compare(ctx context.Context, portfolioID uuid.UUID, from, to int) (*models.VersionDiff, error)
	Rollback(ctx context.Context, portfolioID uuid.UUID, target int, actor string, reason *string) (*service.MutationResult, error)
	VerifyIntegrity(ctx context.Context, portfolioID uuid.UUID) (*models.IntegrityReport, error)
	VerifyAll(ctx context.Context, concurrency int) (*service.IntegritySummary, error)
}

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	health           HealthChecker
	gatherer         prometheus.Gatherer
	logger           *logging.Logger
	config           *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64
	Burst             int
	VerifyConcurrency int
}

// NewServer creates a new API server instance. health and gatherer may be nil.
func NewServer(
	config *ServerConfig,
	portfolioService PortfolioServiceInterface,
	health HealthChecker,
	gatherer prometheus.Gatherer,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		health:           health,
		gatherer:         gatherer,
		logger:           logger.WithField("component", "api"),
		config:           config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)

	// Order matters: recovery must see panics from every later layer
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios", s.handleCreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{id}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}", s.handleUpdatePortfolio).Methods("PUT", "PATCH")
	api.HandleFunc("/portfolios/{id}", s.handleDeletePortfolio).Methods("DELETE")

	// Holdings endpoints
	api.HandleFunc("/portfolios/{id}/constituents", s.handleAddConstituent).Methods("POST")
	api.HandleFunc("/portfolios/{id}/constituents/{assetClass}/{assetId}", s.handleRemoveConstituent).Methods("DELETE")
	api.HandleFunc("/portfolios/{id}/rebalance", s.handleRebalance).Methods("POST")
	api.HandleFunc("/portfolios/{id}/manual-edits", s.handleManualEdit).Methods("POST")

	// Version endpoints
	api.HandleFunc("/portfolios/{id}/versions", s.handleListVersions).Methods("GET")
	api.HandleFunc("/portfolios/{id}/versions/latest", s.handleLatestVersion).Methods("GET")
	api.HandleFunc("/portfolios/{id}/versions/compare", s.handleCompareVersions).Methods("GET")
	api.HandleFunc("/portfolios/{id}/versions/verify", s.handleVerifyPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/versions/{version:[0-9]+}", s.handleGetVersion).Methods("GET")
	api.HandleFunc("/portfolios/{id}/rollback", s.handleRollback).Methods("POST")

	api.HandleFunc("/integrity", s.handleVerifyAll).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			if apperrors.Categorize(err).StatusCode != http.StatusServiceUnavailable {
				err = apperrors.NewServiceUnavailableError("portfolio-versioning", err)
			}
			respondServiceError(w, r, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-versioning",
	})
}

// Handler returns the routed handler, for embedding the API in tests or
// another server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
