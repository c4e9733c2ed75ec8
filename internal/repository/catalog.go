package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// Ensure PostgresCatalogReader implements CatalogReader.
var _ CatalogReader = (*PostgresCatalogReader)(nil)

// PostgresCatalogReader is the read-only product lookup. It never writes
// stock; all stock mutation goes through the inventory guard.
type PostgresCatalogReader struct {
	db *sql.DB
}

func NewPostgresCatalogReader(db *sql.DB) *PostgresCatalogReader {
	return &PostgresCatalogReader{db: db}
}

// GetProduct retrieves a single product by id.
func (r *PostgresCatalogReader) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	var image sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, vendor_id, name, price, stock, image FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock, &image)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if image.Valid {
		p.Image = image.String
	}
	return &p, nil
}

// GetProducts retrieves a batch of products keyed by id. Missing ids are
// simply absent from the result; callers decide whether that is an error.
func (r *PostgresCatalogReader) GetProducts(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, vendor_id, name, price, stock, image FROM products WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[string]*models.Product, len(ids))
	for rows.Next() {
		var p models.Product
		var image sql.NullString
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock, &image); err != nil {
			return nil, err
		}
		if image.Valid {
			p.Image = image.String
		}
		products[p.ID] = &p
	}
	return products, rows.Err()
}
