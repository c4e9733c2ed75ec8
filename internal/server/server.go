package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/handlers"
	"github.com/vendora-market/orders-service/internal/middleware"
)

// Server owns the HTTP surface: routing, auth middleware and lifecycle.
type Server struct {
	config   *config.Config
	router   *gin.Engine
	handlers *handlers.Handlers
	http     *http.Server
	logger   *zap.Logger
}

// New wires the router. The buyer-facing API sits behind JWT auth; the
// payment callback, health probes and metrics are open.
func New(h *handlers.Handlers, cfg *config.Config, db *sql.DB, registry *prometheus.Registry, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: h,
		logger:   logger,
	}
	s.setupRoutes(db, registry)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

func (s *Server) setupRoutes(db *sql.DB, registry *prometheus.Registry) {
	s.router.GET("/health", handlers.Health)
	s.router.GET("/ready", handlers.Ready(db))
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	s.router.GET("/payment-callback", s.handlers.PaymentCallback)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.BuyerAuth(s.config.Auth.JWTSecret, s.logger))
	{
		v1.POST("/orders", s.handlers.CreateOrder)
		v1.GET("/orders", s.handlers.ListOrders)
		v1.GET("/orders/:id", s.handlers.GetOrder)
		v1.POST("/orders/:id/pay", s.handlers.RetryPayment)
		v1.POST("/orders/:id/cancel", s.handlers.CancelOrder)
		v1.POST("/orders/:id/deliver", s.handlers.MarkDelivered)
	}
}

// Start begins serving. Blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
