package service

import (
	"context"
	"sync"
	"time"

	"github.com/vendora-market/orders-service/internal/clients"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/events"
	"github.com/vendora-market/orders-service/internal/models"
)

// fakeOrderRepo is an in-memory OrderRepository that mirrors the storage
// layer's transition semantics, including atomic stock reservation.
type fakeOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*models.Order
	stock  map[string]int
}

func newFakeOrderRepo(stock map[string]int) *fakeOrderRepo {
	if stock == nil {
		stock = map[string]int{}
	}
	return &fakeOrderRepo{
		orders: map[string]*models.Order{},
		stock:  stock,
	}
}

func (f *fakeOrderRepo) Create(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, item := range order.Items {
		if f.stock[item.ProductID] < item.Quantity {
			return &errs.InsufficientStockError{
				ProductID: item.ProductID,
				Available: f.stock[item.ProductID],
				Requested: item.Quantity,
			}
		}
	}
	for _, item := range order.Items {
		f.stock[item.ProductID] -= item.Quantity
	}

	saved := *order
	f.orders[order.ID] = &saved
	return nil
}

func (f *fakeOrderRepo) GetByID(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.get(id)
}

func (f *fakeOrderRepo) GetByTxRef(_ context.Context, txRef string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.TxRef == txRef {
			copied := *order
			return &copied, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeOrderRepo) GetByBuyerID(_ context.Context, buyerID string, limit, offset int) ([]*models.Order, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]*models.Order, 0)
	for _, order := range f.orders {
		if order.BuyerID == buyerID {
			copied := *order
			all = append(all, &copied)
		}
	}
	total := len(all)
	if offset >= total {
		return []*models.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeOrderRepo) MarkPaid(_ context.Context, id string, details models.PaymentDetails) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.get(id)
	if err != nil {
		return nil, false, err
	}
	if order.Status != models.OrderStatusPending {
		return order, false, nil
	}
	stored := f.orders[id]
	stored.Status = models.OrderStatusPaid
	stored.PaymentDetails = &details
	stored.UpdatedAt = time.Now()
	copied := *stored
	return &copied, true, nil
}

func (f *fakeOrderRepo) MarkFailed(_ context.Context, id string) (*models.Order, bool, error) {
	return f.failTransition(id, models.OrderStatusFailed, false)
}

func (f *fakeOrderRepo) Cancel(_ context.Context, id string) (*models.Order, error) {
	order, _, err := f.failTransition(id, models.OrderStatusCancelled, true)
	return order, err
}

func (f *fakeOrderRepo) failTransition(id string, target models.OrderStatus, strict bool) (*models.Order, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.get(id)
	if err != nil {
		return nil, false, err
	}
	if order.Status != models.OrderStatusPending {
		if strict {
			return nil, false, &errs.InvalidTransitionError{From: string(order.Status), To: string(target)}
		}
		return order, false, nil
	}
	stored := f.orders[id]
	stored.Status = target
	stored.UpdatedAt = time.Now()
	for _, item := range stored.Items {
		f.stock[item.ProductID] += item.Quantity
	}
	copied := *stored
	return &copied, true, nil
}

func (f *fakeOrderRepo) MarkDelivered(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, err := f.get(id)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPaid {
		return nil, &errs.InvalidTransitionError{
			From: string(order.Status),
			To:   string(models.OrderStatusDelivered),
		}
	}
	stored := f.orders[id]
	stored.Status = models.OrderStatusDelivered
	stored.UpdatedAt = time.Now()
	copied := *stored
	return &copied, nil
}

func (f *fakeOrderRepo) ListExpiredPending(_ context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Order, 0)
	for _, order := range f.orders {
		if order.Status == models.OrderStatusPending &&
			order.PaymentMethod == models.PaymentMethodCard &&
			order.CreatedAt.Before(cutoff) {
			copied := *order
			out = append(out, &copied)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) get(id string) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) stockOf(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productID]
}

// fakeCatalog serves products from a fixed map.
type fakeCatalog struct {
	products map[string]*models.Product
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) GetProducts(_ context.Context, ids []string) (map[string]*models.Product, error) {
	out := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// noopCache never hits and never fails.
type noopCache struct{}

func (noopCache) Get(context.Context, string) (*models.Order, error) { return nil, nil }
func (noopCache) Set(context.Context, *models.Order) error           { return nil }
func (noopCache) Delete(context.Context, string) error               { return nil }
func (noopCache) GetByBuyerID(context.Context, string) ([]*models.Order, int, error) {
	return nil, 0, nil
}
func (noopCache) SetByBuyerID(context.Context, string, []*models.Order, int) error { return nil }
func (noopCache) InvalidateByBuyerID(context.Context, string) error                { return nil }

// pageCache stores the buyer first-page entry like the Redis cache does,
// for tests that exercise cache hits.
type pageCache struct {
	mu     sync.Mutex
	pages  map[string][]*models.Order
	totals map[string]int
	hits   int
}

func newPageCache() *pageCache {
	return &pageCache{pages: map[string][]*models.Order{}, totals: map[string]int{}}
}

func (c *pageCache) Get(context.Context, string) (*models.Order, error) { return nil, nil }
func (c *pageCache) Set(context.Context, *models.Order) error           { return nil }
func (c *pageCache) Delete(context.Context, string) error               { return nil }

func (c *pageCache) GetByBuyerID(_ context.Context, buyerID string) ([]*models.Order, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	orders, ok := c.pages[buyerID]
	if !ok {
		return nil, 0, nil
	}
	c.hits++
	return orders, c.totals[buyerID], nil
}

func (c *pageCache) SetByBuyerID(_ context.Context, buyerID string, orders []*models.Order, total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages[buyerID] = orders
	c.totals[buyerID] = total
	return nil
}

func (c *pageCache) InvalidateByBuyerID(_ context.Context, buyerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, buyerID)
	delete(c.totals, buyerID)
	return nil
}

// fakeGateway scripts the provider's behavior per test.
type fakeGateway struct {
	mu            sync.Mutex
	createSession func(order *models.Order) (string, error)
	verify        func(transactionID string) (*clients.VerifyResult, error)
	sessionCalls  int
	verifyCalls   int
}

func (f *fakeGateway) CreateSession(_ context.Context, order *models.Order) (string, error) {
	f.mu.Lock()
	f.sessionCalls++
	fn := f.createSession
	f.mu.Unlock()
	if fn == nil {
		return "https://pay.example/session", nil
	}
	return fn(order)
}

func (f *fakeGateway) Verify(_ context.Context, transactionID string) (*clients.VerifyResult, error) {
	f.mu.Lock()
	f.verifyCalls++
	fn := f.verify
	f.mu.Unlock()
	if fn == nil {
		return &clients.VerifyResult{Status: clients.VerifiedStatusSuccessful}, nil
	}
	return fn(transactionID)
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (f *fakePublisher) PublishOrderEvent(_ context.Context, eventType events.EventType, _ *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) published() []events.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.EventType, len(f.events))
	copy(out, f.events)
	return out
}
