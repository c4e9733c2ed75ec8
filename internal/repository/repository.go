package repository

import (
	"context"
	"time"

	"github.com/vendora-market/orders-service/internal/models"
)

// OrderRepository persists the order aggregate and owns its state
// transitions. Transition methods are conditional on the current status at
// the storage layer so that concurrent callers cannot both transition the
// same order.
type OrderRepository interface {
	// Create reserves stock for every line item and persists the order in
	// pending state, all in one transaction. If any reservation fails the
	// whole creation fails and no order row is written.
	Create(ctx context.Context, order *models.Order) error

	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByTxRef(ctx context.Context, txRef string) (*models.Order, error)
	GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, int, error)

	// MarkPaid transitions pending -> paid and stores the payment details.
	// On a non-pending order it is an idempotent no-op returning the order
	// unchanged; this is what makes callback replay safe. The bool reports
	// whether this call performed the transition, so a caller that lost a
	// race can skip its side effects.
	MarkPaid(ctx context.Context, id string, details models.PaymentDetails) (*models.Order, bool, error)

	// MarkFailed transitions pending -> failed and releases the stock
	// reservation. Idempotent no-op on a non-pending order; the bool has
	// the same meaning as in MarkPaid.
	MarkFailed(ctx context.Context, id string) (*models.Order, bool, error)

	// Cancel transitions pending -> cancelled and releases the reservation.
	// Fails with InvalidTransitionError from any other state.
	Cancel(ctx context.Context, id string) (*models.Order, error)

	// MarkDelivered transitions paid -> delivered. Fails with
	// InvalidTransitionError from any other state.
	MarkDelivered(ctx context.Context, id string) (*models.Order, error)

	// ListExpiredPending returns pending card orders created before the
	// cutoff, for the stale-order reaper.
	ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error)
}

// CatalogReader is the read-only product lookup the order flow depends on.
type CatalogReader interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error)
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	Get(ctx context.Context, id string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, id string) error
	// GetByBuyerID returns the cached first page together with the buyer's
	// total order count, so a cache hit reports the same total the
	// database-backed path would.
	GetByBuyerID(ctx context.Context, buyerID string) ([]*models.Order, int, error)
	SetByBuyerID(ctx context.Context, buyerID string, orders []*models.Order, total int) error
	InvalidateByBuyerID(ctx context.Context, buyerID string) error
}
