package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/metrics"
	"github.com/vendora-market/orders-service/internal/repository"
)

const reaperBatchSize = 100

// Reaper cancels pending card orders whose payment never arrived, returning
// their reserved stock to the catalog. Cash-on-delivery orders are exempt:
// they stay pending until fulfillment.
type Reaper struct {
	orderRepo  repository.OrderRepository
	orderCache repository.OrderCache
	publisher  events.Publisher
	metrics    *metrics.Metrics
	pendingTTL time.Duration
	period     time.Duration
	logger     *zap.Logger
}

// NewReaper creates a new stale-order reaper.
func NewReaper(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	publisher events.Publisher,
	m *metrics.Metrics,
	pendingTTL, period time.Duration,
	logger *zap.Logger,
) *Reaper {
	return &Reaper{
		orderRepo:  orderRepo,
		orderCache: orderCache,
		publisher:  publisher,
		metrics:    m,
		pendingTTL: pendingTTL,
		period:     period,
		logger:     logger,
	}
}

// Run sweeps on a fixed period until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	r.logger.Info("reaper started",
		zap.Duration("pending_ttl", r.pendingTTL),
		zap.Duration("period", r.period),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reaper stopped")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error("reaper sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep cancels one batch of expired pending orders. A payment callback that
// lands mid-sweep wins the row lock race; the resulting invalid transition
// is expected and skipped.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.pendingTTL)

	stale, err := r.orderRepo.ListExpiredPending(ctx, cutoff, reaperBatchSize)
	if err != nil {
		return err
	}

	for _, order := range stale {
		cancelled, err := r.orderRepo.Cancel(ctx, order.ID)
		if err != nil {
			var transitionErr *errs.InvalidTransitionError
			if errors.As(err, &transitionErr) {
				r.logger.Debug("order settled before reaping, skipping",
					zap.String("order_id", order.ID),
				)
				continue
			}
			return err
		}

		r.metrics.OrdersReaped.Inc()
		r.logger.Info("stale order cancelled",
			zap.String("order_id", order.ID),
			zap.Time("created_at", order.CreatedAt),
		)

		if err := r.orderCache.Delete(ctx, order.ID); err != nil {
			r.logger.Debug("cache invalidation failed", zap.Error(err))
		}
		if err := r.orderCache.InvalidateByBuyerID(ctx, order.BuyerID); err != nil {
			r.logger.Debug("buyer cache invalidation failed", zap.Error(err))
		}
		if err := r.publisher.PublishOrderEvent(ctx, events.EventTypeOrderCancelled, cancelled); err != nil {
			r.logger.Warn("event publication failed", zap.String("order_id", order.ID), zap.Error(err))
		}
	}
	return nil
}
