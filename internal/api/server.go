// Package api exposes the operational HTTP and WebSocket surface: read-only
// performance and risk queries, a manual halt/reset control, and a live
// stream of decisions and halt broadcasts.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/coordinator"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/risk"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowOrigins   []string
}

// DefaultServerConfig returns default configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		AllowOrigins: []string{"http://localhost:5173"},
	}
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	logger     zerolog.Logger
	coord      *coordinator.Coordinator
	tuner      *risk.LiveStrategyTuner
	hub        *WSHub
}

// NewServer creates a new API server
func NewServer(config ServerConfig, coord *coordinator.Coordinator, tuner *risk.LiveStrategyTuner, hub *WSHub, logger zerolog.Logger) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router: router,
		config: config,
		logger: logger.With().Str("component", "APIServer").Logger(),
		coord:  coord,
		tuner:  tuner,
		hub:    hub,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/performance", s.handleGetPerformance)
		v1.GET("/risk/policy", s.handleGetRiskPolicy)
		v1.GET("/coordinator/status", s.handleGetStatus)
		v1.POST("/coordinator/halt", s.handleHalt)
		v1.POST("/coordinator/reset", s.handleReset)
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
