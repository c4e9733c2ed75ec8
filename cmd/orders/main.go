package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/clients"
	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/handlers"
	"github.com/vendora-market/orders-service/internal/metrics"
	"github.com/vendora-market/orders-service/internal/pricing"
	"github.com/vendora-market/orders-service/internal/repository"
	"github.com/vendora-market/orders-service/internal/server"
	"github.com/vendora-market/orders-service/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	guard := repository.NewInventoryGuard(logger)
	orderRepo := repository.NewPostgresOrderRepository(db, guard, logger)
	catalog := repository.NewPostgresCatalogReader(db)
	orderCache := repository.NewRedisOrderCache(cfg.Redis, logger)

	paymentClient := clients.NewHTTPPaymentClient(cfg.Payment, logger)

	eventPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
	defer eventPublisher.Close()

	pricer := pricing.NewEngine(cfg.Pricing)

	orderService := service.NewOrderService(
		orderRepo,
		catalog,
		orderCache,
		paymentClient,
		eventPublisher,
		pricer,
		m,
		cfg,
		logger,
	)
	reconciler := service.NewReconciliationService(
		orderRepo,
		orderCache,
		paymentClient,
		eventPublisher,
		m,
		logger,
	)

	h := handlers.New(orderService, reconciler, cfg, logger)
	srv := server.New(h, cfg, db, registry, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Orders.ReaperEnabled {
		reaper := service.NewReaper(
			orderRepo,
			orderCache,
			eventPublisher,
			m,
			cfg.Orders.PendingTTL,
			cfg.Orders.ReaperPeriod,
			logger,
		)
		go reaper.Run(ctx)
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func initDatabase(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.String("name", cfg.Database.Name),
	)
	return db, nil
}
