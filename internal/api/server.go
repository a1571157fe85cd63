// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/metrics"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
	"github.com/gorilla/mux"
)

// AgentController is the scheduler surface exposed over HTTP
type AgentController interface {
	Start() bool
	Stop() bool
	Status() types.AgentStatus
	RunOnce(ctx context.Context) (*models.Assessment, error)
}

// AlertReader is the read side of the alert store
type AlertReader interface {
	QueryRecent(ctx context.Context, limit, offset int) ([]*models.Assessment, error)
	QueryByWallet(ctx context.Context, address string, limit int) ([]*models.Assessment, error)
	Stats(ctx context.Context) (*models.AlertStats, error)
}

// LatestReader serves the most recent assessment per wallet
type LatestReader interface {
	GetLatest(ctx context.Context, wallet string) (*models.Assessment, error)
}

// Server represents the HTTP API server.
type Server struct {
	router      *mux.Router
	handler     http.Handler
	httpServer  *http.Server
	agent       AgentController
	alerts      AlertReader
	latest      LatestReader
	rateLimiter *RateLimiter
	config      *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	AllowedOrigins    []string
	StaticDir         string
	ManifestPath      string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestsPerMinute int
	SweepInterval     time.Duration
}

// NewServer creates a new API server instance. latest may be nil.
func NewServer(config *ServerConfig, agent AgentController, alerts AlertReader, latest LatestReader) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		agent:       agent,
		alerts:      alerts,
		latest:      latest,
		rateLimiter: NewRateLimiter(config.RequestsPerMinute, config.SweepInterval),
		config:      config,
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", config.Host, config.Port),
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// setupMiddleware wraps the whole router so preflight and unmatched requests pass through it too
func (s *Server) setupMiddleware() {
	// Listed outermost first
	chain := []func(http.Handler) http.Handler{
		RequestIDMiddleware,
		LoggingMiddleware,
		RecoveryMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(s.config.AllowedOrigins),
		RateLimitMiddleware(s.rateLimiter),
	}

	var h http.Handler = s.router
	for i := len(chain) - 1; i >= 0; i-- {
		h = chain[i](h)
	}
	s.handler = h
}

// setupRoutes configures all API routes. They are registered on the root
// router so a method mismatch reaches MethodNotAllowedHandler.
func (s *Server) setupRoutes() {
	s.router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/agent/status", s.handleAgentStatus).Methods("GET")
	s.router.HandleFunc("/api/agent/start", s.handleAgentStart).Methods("POST")
	s.router.HandleFunc("/api/agent/stop", s.handleAgentStop).Methods("POST")
	s.router.HandleFunc("/api/agent/run", s.handleAgentRun).Methods("POST")

	s.router.HandleFunc("/api/alerts", s.handleGetAlerts).Methods("GET")
	s.router.HandleFunc("/api/alerts/latest", s.handleGetLatestAlert).Methods("GET")
	s.router.HandleFunc("/api/alerts/wallet/{address}", s.handleGetWalletAlerts).Methods("GET")
	s.router.HandleFunc("/api/stats", s.handleGetStats).Methods("GET")

	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	if s.config.ManifestPath != "" {
		s.router.HandleFunc("/mcp-manifest.json", s.handleManifest).Methods("GET")
	}

	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir))).Methods("GET")
	}
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed,
		fmt.Sprintf("Method %s not allowed on %s", r.Method, r.URL.Path), nil)
}

// handleManifest serves the agent manifest consumed by tool-calling clients
func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(s.config.ManifestPath); err != nil {
		respondServiceError(w, r, apperrors.NewNotFoundError("manifest", "mcp-manifest.json"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	http.ServeFile(w, r, s.config.ManifestPath)
}

// Handler returns the router wrapped in middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UnixMilli(),
		"agent":     s.agent.Status(),
	})
}

// Start starts the rate limiter sweeper and the HTTP server.
func (s *Server) Start() error {
	s.rateLimiter.Start()
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the sweeper and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	s.rateLimiter.Stop()
	return s.httpServer.Shutdown(ctx)
}
