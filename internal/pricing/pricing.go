// Package pricing computes authoritative order totals from a cart snapshot.
// All amounts are integer minor currency units; unit prices come from the
// catalog, never from the client.
package pricing

import (
	"github.com/vendora-market/orders-service/internal/config"
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// Totals is the pricing breakdown computed once at order creation.
type Totals struct {
	ItemsTotal    int64 `json:"items_total"`
	ShippingTotal int64 `json:"shipping_total"`
	TaxTotal      int64 `json:"tax_total"`
	GrandTotal    int64 `json:"grand_total"`
}

// Engine applies the single configured rule set: flat shipping fee below the
// free-shipping threshold, tax as a basis-point rate rounded half-up.
type Engine struct {
	cfg config.PricingConfig
}

func NewEngine(cfg config.PricingConfig) *Engine {
	return &Engine{cfg: cfg}
}

// PricedItem pairs a cart quantity with the catalog unit price.
type PricedItem struct {
	ProductID string
	UnitPrice int64
	Quantity  int
}

// Compute calculates the totals for a cart snapshot. It is a pure function of
// its inputs: the same items always produce the same totals.
func (e *Engine) Compute(items []PricedItem) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, errs.NewValidationError("items", "cart is empty")
	}

	var itemsTotal int64
	for _, item := range items {
		if item.Quantity <= 0 {
			return Totals{}, errs.NewValidationError("items", "quantity must be positive")
		}
		if item.UnitPrice < 0 {
			return Totals{}, errs.NewValidationError("items", "unit price cannot be negative")
		}
		itemsTotal += item.UnitPrice * int64(item.Quantity)
	}

	var shippingTotal int64
	if itemsTotal <= e.cfg.FreeShippingThreshold {
		shippingTotal = e.cfg.FlatShippingFee
	}

	taxTotal := roundHalfUpBasisPoints(itemsTotal, e.cfg.TaxRateBasisPoints)

	return Totals{
		ItemsTotal:    itemsTotal,
		ShippingTotal: shippingTotal,
		TaxTotal:      taxTotal,
		GrandTotal:    itemsTotal + shippingTotal + taxTotal,
	}, nil
}

// Currency returns the configured settlement currency.
func (e *Engine) Currency() string {
	return e.cfg.Currency
}

// PriceCart resolves catalog products against cart quantities and computes
// totals plus the priced line items the order will carry.
func (e *Engine) PriceCart(cart []models.CartItem, products map[string]*models.Product) ([]models.OrderItem, Totals, error) {
	priced := make([]PricedItem, 0, len(cart))
	lines := make([]models.OrderItem, 0, len(cart))

	for _, entry := range cart {
		product, ok := products[entry.ProductID]
		if !ok {
			return nil, Totals{}, errs.NewValidationError("items", "unknown product "+entry.ProductID)
		}
		priced = append(priced, PricedItem{
			ProductID: product.ID,
			UnitPrice: product.Price,
			Quantity:  entry.Quantity,
		})
		lines = append(lines, models.OrderItem{
			ProductID: product.ID,
			VendorID:  product.VendorID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  entry.Quantity,
			Image:     product.Image,
		})
	}

	totals, err := e.Compute(priced)
	if err != nil {
		return nil, Totals{}, err
	}
	return lines, totals, nil
}

// roundHalfUpBasisPoints computes amount * bps / 10000 rounded half-up on the
// minor unit, using integer arithmetic only.
func roundHalfUpBasisPoints(amount, bps int64) int64 {
	return (amount*bps + 5000) / 10000
}
