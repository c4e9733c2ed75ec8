package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/clients"
	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/metrics"
	"github.com/vendora-market/orders-service/internal/models"
	"github.com/vendora-market/orders-service/internal/pricing"
	"github.com/vendora-market/orders-service/internal/repository"
)

// OrderService orchestrates order creation, retrieval and buyer-initiated
// transitions. All authorization decisions happen here, at the entry point,
// never deep inside handlers.
type OrderService struct {
	orderRepo  repository.OrderRepository
	catalog    repository.CatalogReader
	orderCache repository.OrderCache
	gateway    clients.PaymentGateway
	publisher  events.Publisher
	pricer     *pricing.Engine
	metrics    *metrics.Metrics
	config     *config.Config
	logger     *zap.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	catalog repository.CatalogReader,
	orderCache repository.OrderCache,
	gateway clients.PaymentGateway,
	publisher events.Publisher,
	pricer *pricing.Engine,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *zap.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		catalog:    catalog,
		orderCache: orderCache,
		gateway:    gateway,
		publisher:  publisher,
		pricer:     pricer,
		metrics:    m,
		config:     cfg,
		logger:     logger,
	}
}

// CreateOrderResult is the synchronous result of order creation. PaymentLink
// is set only for card orders whose payment session opened successfully.
type CreateOrderResult struct {
	Order       *models.Order
	PaymentLink string
}

// CreateOrder converts a cart into a persisted pending order: totals are
// computed from catalog prices, stock is reserved atomically with the order
// row, and for card payments a provider session is opened keyed by the
// order's transaction reference.
//
// A failed session leaves the order pending with its reservation held; the
// session can be retried via RetryPayment, and the reaper eventually cancels
// orders that are never paid.
func (s *OrderService) CreateOrder(ctx context.Context, buyer models.Buyer, req *models.CreateOrderRequest) (*CreateOrderResult, error) {
	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	lines, totals, err := s.pricer.PriceCart(req.Items, products)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		ID:              "ord_" + uuid.NewString(),
		BuyerID:         buyer.ID,
		BuyerEmail:      buyer.Email,
		BuyerName:       buyer.Name,
		Items:           lines,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsTotal:      totals.ItemsTotal,
		ShippingTotal:   totals.ShippingTotal,
		TaxTotal:        totals.TaxTotal,
		GrandTotal:      totals.GrandTotal,
		Currency:        s.pricer.Currency(),
		TxRef:           "vnd-" + uuid.NewString(),
		Status:          models.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orderRepo.Create(ctx, order); err != nil {
		var stockErr *errs.InsufficientStockError
		if errors.As(err, &stockErr) {
			s.metrics.StockConflicts.Inc()
		}
		return nil, err
	}

	s.metrics.OrdersCreated.WithLabelValues(string(order.PaymentMethod)).Inc()
	s.afterTransition(ctx, events.EventTypeOrderCreated, order)

	result := &CreateOrderResult{Order: order}

	if order.PaymentMethod == models.PaymentMethodCard {
		link, err := s.gateway.CreateSession(ctx, order)
		if err != nil {
			s.metrics.SessionFailures.Inc()
			s.logger.Error("payment session failed, order stays pending",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
			return result, err
		}
		result.PaymentLink = link
	}

	return result, nil
}

// GetOrder retrieves an order on behalf of a requester. Buyers may only view
// their own orders.
func (s *OrderService) GetOrder(ctx context.Context, id, requesterID string) (*models.Order, error) {
	if order, err := s.orderCache.Get(ctx, id); err == nil && order != nil {
		if order.BuyerID != requesterID {
			return nil, errs.ErrForbidden
		}
		return order, nil
	}

	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != requesterID {
		return nil, errs.ErrForbidden
	}

	if err := s.orderCache.Set(ctx, order); err != nil {
		s.logger.Debug("failed to cache order", zap.String("order_id", id), zap.Error(err))
	}
	return order, nil
}

// ListOrders retrieves a page of the requester's own orders.
func (s *OrderService) ListOrders(ctx context.Context, requesterID string, limit, offset int) ([]*models.Order, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	if offset == 0 {
		if orders, total, err := s.orderCache.GetByBuyerID(ctx, requesterID); err == nil && orders != nil {
			return orders, total, nil
		}
	}

	orders, total, err := s.orderRepo.GetByBuyerID(ctx, requesterID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	if offset == 0 {
		if err := s.orderCache.SetByBuyerID(ctx, requesterID, orders, total); err != nil {
			s.logger.Debug("failed to cache buyer orders", zap.Error(err))
		}
	}
	return orders, total, nil
}

// RetryPayment opens a fresh payment session for a pending card order,
// reusing the order's transaction reference so the provider deduplicates.
func (s *OrderService) RetryPayment(ctx context.Context, id, requesterID string) (string, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if order.BuyerID != requesterID {
		return "", errs.ErrForbidden
	}
	if order.PaymentMethod != models.PaymentMethodCard {
		return "", errs.NewValidationError("payment_method", "order is not a card order")
	}
	if order.Status != models.OrderStatusPending {
		return "", errs.NewValidationError("status", "order is no longer payable")
	}

	link, err := s.gateway.CreateSession(ctx, order)
	if err != nil {
		s.metrics.SessionFailures.Inc()
		return "", err
	}
	return link, nil
}

// CancelOrder cancels the requester's own pending order, releasing its
// stock reservation.
func (s *OrderService) CancelOrder(ctx context.Context, id, requesterID string) (*models.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != requesterID {
		return nil, errs.ErrForbidden
	}

	cancelled, err := s.orderRepo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, events.EventTypeOrderCancelled, cancelled)
	return cancelled, nil
}

// MarkDelivered records fulfillment of a paid order. Vendor/admin identity
// checks happen upstream in the admin surface; this core only enforces the
// state machine.
func (s *OrderService) MarkDelivered(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderRepo.MarkDelivered(ctx, id)
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, events.EventTypeOrderDelivered, order)
	return order, nil
}

// afterTransition invalidates caches and publishes the lifecycle event.
// Both are best-effort: the durable state change already happened.
func (s *OrderService) afterTransition(ctx context.Context, eventType events.EventType, order *models.Order) {
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
