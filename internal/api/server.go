// Package api exposes a read-only status surface over HTTP: orchestrator
// statistics, open positions, the portfolio snapshot and position management
// state. It never mutates trading state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/orchestrator"
	"forex-trading-engine/internal/portfolio"
	"forex-trading-engine/internal/statecache"
)

// Config holds the HTTP server settings.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

// Server wires the status endpoints. Gatekeeper and state cache are optional.
type Server struct {
	config       Config
	broker       broker.Broker
	orchestrator *orchestrator.Orchestrator
	gatekeeper   *portfolio.Gatekeeper
	states       *statecache.Cache
	logger       zerolog.Logger
	httpServer   *http.Server
}

// New creates the status server.
func New(config Config, b broker.Broker, orch *orchestrator.Orchestrator, gk *portfolio.Gatekeeper, states *statecache.Cache, logger zerolog.Logger) *Server {
	return &Server{
		config:       config,
		broker:       b,
		orchestrator: orch,
		gatekeeper:   gk,
		states:       states,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/stats", s.handleStats)
		apiGroup.GET("/instruments", s.handleInstruments)
		apiGroup.GET("/positions", s.handlePositions)
		apiGroup.GET("/portfolio", s.handlePortfolio)
		apiGroup.GET("/management", s.handleManagement)
	}
	return router
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("status API listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status API: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.orchestrator.Stats())
}

func (s *Server) handleInstruments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"instruments": s.orchestrator.Instruments()})
}

func (s *Server) handlePositions(c *gin.Context) {
	positions, err := s.broker.ListOpenPositions(c.Request.Context(), c.Query("symbol"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

func (s *Server) handlePortfolio(c *gin.Context) {
	if s.gatekeeper == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no gatekeeper configured"})
		return
	}
	snap, err := s.gatekeeper.TakeSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleManagement(c *gin.Context) {
	if s.states == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no state cache configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"states": s.states.ListManagementStates()})
}
