package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// Ensure PostgresOrderRepository implements OrderRepository.
var _ OrderRepository = (*PostgresOrderRepository)(nil)

const orderColumns = `
	id, buyer_id, buyer_email, buyer_name, items, shipping_address,
	payment_method, items_total, shipping_total, tax_total, grand_total,
	currency, tx_ref, status, payment_details, created_at, updated_at`

// PostgresOrderRepository implements OrderRepository using PostgreSQL.
// Stock mutation is delegated to the inventory guard inside the same
// transaction as the order row change it belongs to.
type PostgresOrderRepository struct {
	db     *sql.DB
	guard  *InventoryGuard
	logger *zap.Logger
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, guard *InventoryGuard, logger *zap.Logger) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		guard:  guard,
		logger: logger,
	}
}

// Create reserves stock for every line item and inserts the order in one
// transaction. A failed reservation rolls everything back: no partial stock
// decrement, no order row.
func (r *PostgresOrderRepository) Create(ctx context.Context, order *models.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.guard.Reserve(ctx, tx, order.Items); err != nil {
		return err
	}

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return err
	}
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO orders (
			id, buyer_id, buyer_email, buyer_name, items, shipping_address,
			payment_method, items_total, shipping_total, tax_total, grand_total,
			currency, tx_ref, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	_, err = tx.ExecContext(ctx, query,
		order.ID,
		order.BuyerID,
		order.BuyerEmail,
		order.BuyerName,
		itemsJSON,
		addressJSON,
		order.PaymentMethod,
		order.ItemsTotal,
		order.ShippingTotal,
		order.TaxTotal,
		order.GrandTotal,
		order.Currency,
		order.TxRef,
		order.Status,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("failed to insert order",
			zap.String("buyer_id", order.BuyerID),
			zap.Error(err),
		)
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	r.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("tx_ref", order.TxRef),
		zap.Int64("grand_total", order.GrandTotal),
	)
	return nil
}

// GetByID retrieves an order by its unique identifier.
func (r *PostgresOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1`, id)
	return r.scanOrder(row)
}

// GetByTxRef retrieves an order by its transaction reference, the
// correlation key for payment callbacks.
func (r *PostgresOrderRepository) GetByTxRef(ctx context.Context, txRef string) (*models.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE tx_ref = $1`, txRef)
	return r.scanOrder(row)
}

// GetByBuyerID retrieves a page of a buyer's orders, newest first.
func (r *PostgresOrderRepository) GetByBuyerID(ctx context.Context, buyerID string, limit, offset int) ([]*models.Order, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE buyer_id = $1`, buyerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE buyer_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		buyerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

// MarkPaid applies the pending -> paid transition and stores the settlement
// details. The update is conditional on the current status; when another
// caller already transitioned the order this is a no-op that returns the
// stored order unchanged and reports false.
func (r *PostgresOrderRepository) MarkPaid(ctx context.Context, id string, details models.PaymentDetails) (*models.Order, bool, error) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return nil, false, err
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, payment_details = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, models.OrderStatusPaid, detailsJSON, time.Now(), models.OrderStatusPending,
	)
	if err != nil {
		return nil, false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if affected == 0 {
		r.logger.Warn("markPaid on non-pending order, treating as replay",
			zap.String("order_id", id),
			zap.String("status", string(order.Status)),
		)
		return order, false, nil
	}

	r.logger.Info("order marked paid",
		zap.String("order_id", id),
		zap.String("provider_txn", details.ProviderTransactionID),
	)
	return order, true, nil
}

// MarkFailed applies the pending -> failed transition and releases the stock
// reservation in the same transaction. The row lock taken here serializes
// against a concurrent MarkPaid, so held stock is restored at most once.
func (r *PostgresOrderRepository) MarkFailed(ctx context.Context, id string) (*models.Order, bool, error) {
	return r.failTransition(ctx, id, models.OrderStatusFailed, false)
}

// Cancel applies the pending -> cancelled transition and releases the stock
// reservation. Unlike MarkFailed, cancelling a non-pending order is an
// InvalidTransitionError: the caller explicitly asked for something the
// state machine does not allow.
func (r *PostgresOrderRepository) Cancel(ctx context.Context, id string) (*models.Order, error) {
	order, _, err := r.failTransition(ctx, id, models.OrderStatusCancelled, true)
	return order, err
}

func (r *PostgresOrderRepository) failTransition(ctx context.Context, id string, target models.OrderStatus, strict bool) (*models.Order, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT`+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	order, err := r.scanOrder(row)
	if err != nil {
		return nil, false, err
	}

	if order.Status != models.OrderStatusPending {
		if strict {
			return nil, false, &errs.InvalidTransitionError{
				From: string(order.Status),
				To:   string(target),
			}
		}
		r.logger.Warn("failure transition on non-pending order, treating as replay",
			zap.String("order_id", id),
			zap.String("status", string(order.Status)),
		)
		return order, false, nil
	}

	now := time.Now()
	if _, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, target, now,
	); err != nil {
		return nil, false, err
	}

	if err := r.guard.Release(ctx, tx, order.Items); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	order.Status = target
	order.UpdatedAt = now

	r.logger.Info("order transitioned with stock release",
		zap.String("order_id", id),
		zap.String("status", string(target)),
	)
	return order, true, nil
}

// MarkDelivered applies the paid -> delivered transition.
func (r *PostgresOrderRepository) MarkDelivered(ctx context.Context, id string) (*models.Order, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`,
		id, models.OrderStatusDelivered, time.Now(), models.OrderStatusPaid,
	)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, &errs.InvalidTransitionError{
			From: string(order.Status),
			To:   string(models.OrderStatusDelivered),
		}
	}
	return order, nil
}

// ListExpiredPending returns pending card orders created before the cutoff,
// oldest first.
func (r *PostgresOrderRepository) ListExpiredPending(ctx context.Context, cutoff time.Time, limit int) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+orderColumns+` FROM orders
		 WHERE status = $1 AND payment_method = $2 AND created_at < $3
		 ORDER BY created_at ASC LIMIT $4`,
		models.OrderStatusPending, models.PaymentMethodCard, cutoff, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresOrderRepository) scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var itemsJSON, addressJSON, detailsJSON []byte

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.BuyerEmail,
		&order.BuyerName,
		&itemsJSON,
		&addressJSON,
		&order.PaymentMethod,
		&order.ItemsTotal,
		&order.ShippingTotal,
		&order.TaxTotal,
		&order.GrandTotal,
		&order.Currency,
		&order.TxRef,
		&order.Status,
		&detailsJSON,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, err
	}
	if len(detailsJSON) > 0 {
		var details models.PaymentDetails
		if err := json.Unmarshal(detailsJSON, &details); err != nil {
			return nil, err
		}
		order.PaymentDetails = &details
	}

	return &order, nil
}
