package repository

import (
	"context"
	"database/sql"
	"sort"

	"go.uber.org/zap"

	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// InventoryGuard is the only component allowed to mutate product stock. Its
// operations run inside a caller-supplied transaction so that reserve and
// release commit or roll back together with the order row they belong to.
type InventoryGuard struct {
	logger *zap.Logger
}

func NewInventoryGuard(logger *zap.Logger) *InventoryGuard {
	return &InventoryGuard{logger: logger}
}

// Reserve checks and decrements stock for every line item. Each product row
// is locked before the check so that concurrent reservations against the
// same product serialize; two orders for the last unit cannot both succeed.
// Rows are locked in product-ID order regardless of cart order, so two
// overlapping multi-item reservations cannot deadlock on each other.
// If any item fails, the caller's transaction rollback undoes the decrements
// already applied for earlier items.
func (g *InventoryGuard) Reserve(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	ordered := make([]models.OrderItem, len(items))
	copy(ordered, items)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })

	for _, item := range ordered {
		var available int
		err := tx.QueryRowContext(ctx,
			`SELECT stock FROM products WHERE id = $1 FOR UPDATE`,
			item.ProductID,
		).Scan(&available)
		if err == sql.ErrNoRows {
			return errs.NewValidationError("items", "unknown product "+item.ProductID)
		}
		if err != nil {
			return err
		}

		if available < item.Quantity {
			g.logger.Info("stock reservation rejected",
				zap.String("product_id", item.ProductID),
				zap.Int("available", available),
				zap.Int("requested", item.Quantity),
			)
			return &errs.InsufficientStockError{
				ProductID: item.ProductID,
				Available: available,
				Requested: item.Quantity,
			}
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
			item.ProductID, item.Quantity,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != 1 {
			// Row is locked, so this means the guard condition failed.
			return &errs.InsufficientStockError{
				ProductID: item.ProductID,
				Available: available,
				Requested: item.Quantity,
			}
		}
	}

	return nil
}

// Release restores the stock held by the given line items. Callers guard
// against double-release through the order status transition: release only
// runs in the same transaction as a successful pending -> failed/cancelled
// update.
func (g *InventoryGuard) Release(ctx context.Context, tx *sql.Tx, items []models.OrderItem) error {
	for _, item := range items {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + $2 WHERE id = $1`,
			item.ProductID, item.Quantity,
		); err != nil {
			return err
		}
	}

	g.logger.Debug("stock reservation released", zap.Int("items", len(items)))
	return nil
}
