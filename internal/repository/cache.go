package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/models"
)

const (
	orderKeyPrefix   = "order:"
	buyerOrdersKey   = "buyer_orders:"
	defaultCacheTTL  = 5 * time.Minute
)

// Ensure RedisOrderCache implements OrderCache.
var _ OrderCache = (*RedisOrderCache)(nil)

// RedisOrderCache implements OrderCache using Redis. Entries are invalidated
// on every status transition; a stale hit can only ever show an older order
// state, never a fabricated one.
type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisOrderCache creates a new Redis-based order cache.
func NewRedisOrderCache(cfg config.RedisConfig, logger *zap.Logger) *RedisOrderCache {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = defaultCacheTTL
	}

	return &RedisOrderCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get retrieves an order from cache. A miss returns (nil, nil).
func (c *RedisOrderCache) Get(ctx context.Context, id string) (*models.Order, error) {
	data, err := c.client.Get(ctx, orderKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		c.logger.Error("cache get error", zap.String("order_id", id), zap.Error(err))
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}

	c.logger.Debug("cache hit", zap.String("order_id", id))
	return &order, nil
}

// Set stores an order in cache.
func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}

	if err := c.client.Set(ctx, orderKeyPrefix+order.ID, data, c.ttl).Err(); err != nil {
		c.logger.Error("cache set error", zap.String("order_id", order.ID), zap.Error(err))
		return err
	}
	return nil
}

// Delete removes an order from cache.
func (c *RedisOrderCache) Delete(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, orderKeyPrefix+id).Err(); err != nil {
		c.logger.Error("cache delete error", zap.String("order_id", id), zap.Error(err))
		return err
	}
	return nil
}

// buyerOrdersPage is the cached envelope for a buyer's first page. The
// total rides along so a hit reports the same count as the database.
type buyerOrdersPage struct {
	Orders []*models.Order `json:"orders"`
	Total  int             `json:"total"`
}

// GetByBuyerID retrieves cached first-page orders and total for a buyer.
func (c *RedisOrderCache) GetByBuyerID(ctx context.Context, buyerID string) ([]*models.Order, int, error) {
	data, err := c.client.Get(ctx, buyerOrdersKey+buyerID).Bytes()
	if err == redis.Nil {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	var page buyerOrdersPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, 0, err
	}
	return page.Orders, page.Total, nil
}

// SetByBuyerID caches first-page orders and the buyer's total order count.
func (c *RedisOrderCache) SetByBuyerID(ctx context.Context, buyerID string, orders []*models.Order, total int) error {
	data, err := json.Marshal(buyerOrdersPage{Orders: orders, Total: total})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, buyerOrdersKey+buyerID, data, c.ttl).Err()
}

// InvalidateByBuyerID removes cached orders for a buyer.
func (c *RedisOrderCache) InvalidateByBuyerID(ctx context.Context, buyerID string) error {
	return c.client.Del(ctx, buyerOrdersKey+buyerID).Err()
}
