package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/clients"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/metrics"
	"github.com/vendora-market/orders-service/internal/models"
	"github.com/vendora-market/orders-service/internal/repository"
)

// Outcome classifies the result of reconciling a payment callback. Handlers
// use it to choose a redirect target and whether the provider should retry.
type Outcome string

const (
	// OutcomePaid means verification confirmed the charge and the order
	// transitioned to paid.
	OutcomePaid Outcome = "paid"
	// OutcomeFailed means verification reported the charge unsuccessful and
	// the order transitioned to failed with its stock released.
	OutcomeFailed Outcome = "failed"
	// OutcomeReplay means the order was already terminal; nothing changed.
	OutcomeReplay Outcome = "replay"
	// OutcomeUnknown means the callback did not correspond to any order, or
	// its reference did not match; it is acknowledged and ignored.
	OutcomeUnknown Outcome = "unknown"
	// OutcomeTransient means verification itself failed; the order is left
	// pending and the callback should be retried.
	OutcomeTransient Outcome = "transient"
)

// ReconciliationService settles orders against the payment provider. The
// callback query parameters are treated as advisory only: every settlement
// decision rests on a server-to-server verification.
type ReconciliationService struct {
	orderRepo  repository.OrderRepository
	orderCache repository.OrderCache
	gateway    clients.PaymentGateway
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	orderRepo repository.OrderRepository,
	orderCache repository.OrderCache,
	gateway clients.PaymentGateway,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		orderRepo:  orderRepo,
		orderCache: orderCache,
		gateway:    gateway,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
	}
}

// Reconcile processes a payment callback identified by the provider's
// transaction ID and our transaction reference. It is safe to call any
// number of times with the same arguments: replays observe the already
// settled order and change nothing.
func (s *ReconciliationService) Reconcile(ctx context.Context, transactionID, txRef string) (Outcome, *models.Order, error) {
	order, err := s.orderRepo.GetByTxRef(ctx, txRef)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.logger.Warn("callback for unknown tx_ref, ignoring",
				zap.String("tx_ref", txRef),
				zap.String("transaction_id", transactionID),
			)
			s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeUnknown).Inc()
			return OutcomeUnknown, nil, nil
		}
		return OutcomeTransient, nil, err
	}

	if models.IsTerminal(order.Status) || order.Status == models.OrderStatusPaid {
		s.logger.Info("callback replay on settled order",
			zap.String("order_id", order.ID),
			zap.String("status", string(order.Status)),
		)
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeReplay).Inc()
		return OutcomeReplay, order, nil
	}

	result, err := s.gateway.Verify(ctx, transactionID)
	if err != nil {
		s.logger.Error("verification failed, order left pending",
			zap.String("order_id", order.ID),
			zap.String("transaction_id", transactionID),
			zap.Error(err),
		)
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeTransient).Inc()
		return OutcomeTransient, order, err
	}

	if result.TxRef != "" && result.TxRef != order.TxRef {
		s.logger.Warn("verified transaction references a different order, ignoring",
			zap.String("order_id", order.ID),
			zap.String("expected_tx_ref", order.TxRef),
			zap.String("got_tx_ref", result.TxRef),
		)
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeUnknown).Inc()
		return OutcomeUnknown, order, nil
	}

	if s.settlesOrder(order, result) {
		details := models.PaymentDetails{
			ProviderTransactionID: result.ProviderTransactionID,
			PayerEmail:            result.PayerEmail,
			SettledAt:             time.Now(),
		}
		paid, transitioned, err := s.orderRepo.MarkPaid(ctx, order.ID, details)
		if err != nil {
			s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeTransient).Inc()
			return OutcomeTransient, order, err
		}
		if !transitioned {
			// Another caller won the race; its side effects already ran.
			s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeReplay).Inc()
			return OutcomeReplay, paid, nil
		}
		s.afterSettlement(ctx, events.EventTypeOrderPaid, paid)
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomePaid).Inc()
		return OutcomePaid, paid, nil
	}

	failed, transitioned, err := s.orderRepo.MarkFailed(ctx, order.ID)
	if err != nil {
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeTransient).Inc()
		return OutcomeTransient, order, err
	}
	if !transitioned {
		s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeReplay).Inc()
		return OutcomeReplay, failed, nil
	}
	s.afterSettlement(ctx, events.EventTypeOrderFailed, failed)
	s.metrics.PaymentCallbacks.WithLabelValues(metrics.CallbackOutcomeFailed).Inc()
	return OutcomeFailed, failed, nil
}

// settlesOrder decides whether a verified transaction actually pays for the
// order. A successful charge for the wrong amount or currency does not.
func (s *ReconciliationService) settlesOrder(order *models.Order, result *clients.VerifyResult) bool {
	if result.Status != clients.VerifiedStatusSuccessful {
		return false
	}
	if result.Amount < order.GrandTotal {
		s.logger.Warn("verified amount below order total, treating as failed",
			zap.String("order_id", order.ID),
			zap.Int64("expected", order.GrandTotal),
			zap.Int64("got", result.Amount),
		)
		return false
	}
	if result.Currency != "" && result.Currency != order.Currency {
		s.logger.Warn("verified currency mismatch, treating as failed",
			zap.String("order_id", order.ID),
			zap.String("expected", order.Currency),
			zap.String("got", result.Currency),
		)
		return false
	}
	return true
}

func (s *ReconciliationService) afterSettlement(ctx context.Context, eventType events.EventType, order *models.Order) {
	if err := s.orderCache.Delete(ctx, order.ID); err != nil {
		s.logger.Debug("cache invalidation failed", zap.String("order_id", order.ID), zap.Error(err))
	}
	if err := s.orderCache.InvalidateByBuyerID(ctx, order.BuyerID); err != nil {
		s.logger.Debug("buyer cache invalidation failed", zap.String("buyer_id", order.BuyerID), zap.Error(err))
	}
	if err := s.publisher.PublishOrderEvent(ctx, eventType, order); err != nil {
		s.logger.Warn("event publication failed",
			zap.String("order_id", order.ID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}
