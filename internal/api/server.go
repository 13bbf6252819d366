// Package api serves the read-only status HTTP surface: health, recent
// signals, recent orders and portfolio summary.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/signalflow/internal/db"
)

const listLimit = 50

// Server is the read-only status API
type Server struct {
	store *db.DB
	http  *http.Server
}

// New builds the server with its routes
func New(addr string, store *db.DB) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	s := &Server{
		store: store,
		http: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/signals", s.handleSignals)
		api.GET("/orders", s.handleOrders)
		api.GET("/summary", s.handleSummary)
	}

	return s
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	log.Info().Str("addr", s.http.Addr).Msg("Status API listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSignals(c *gin.Context) {
	signals, err := s.store.RecentSignals(c.Request.Context(), listLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func (s *Server) handleOrders(c *gin.Context) {
	orders, err := s.store.RecentOrders(c.Request.Context(), listLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "count": len(orders)})
}

func (s *Server) handleSummary(c *gin.Context) {
	ctx := c.Request.Context()

	positions, err := s.store.OpenPositions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dayStart := startOfDayUTC(time.Now().UTC())
	realized, err := s.store.RealizedPnlSince(ctx, dayStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	consumed, err := s.store.CountConsumedSince(ctx, dayStart)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var unrealized float64
	for _, p := range positions {
		unrealized += p.UnrealizedPnl
	}

	c.JSON(http.StatusOK, gin.H{
		"open_positions":     len(positions),
		"unrealized_pnl":     unrealized,
		"realized_pnl_today": realized,
		"signals_today":      consumed,
		"positions":          positions,
	})
}

func startOfDayUTC(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
