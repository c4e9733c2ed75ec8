package service

import (
	"github.com/vendora-market/orders-service/internal/errs"
	"github.com/vendora-market/orders-service/internal/models"
)

// ValidateCreateOrderRequest validates an order creation request. Prices are
// deliberately absent from the request shape; they are read from the catalog.
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return errs.NewValidationError("items", "at least one item is required")
	}

	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" {
			return errs.NewValidationError("items", "product ID is required for item")
		}
		if item.Quantity <= 0 {
			return errs.NewValidationError("items", "quantity must be positive")
		}
		if seen[item.ProductID] {
			return errs.NewValidationError("items", "duplicate product "+item.ProductID)
		}
		seen[item.ProductID] = true
	}

	if err := validateAddress(&req.ShippingAddress); err != nil {
		return err
	}

	switch req.PaymentMethod {
	case models.PaymentMethodCard, models.PaymentMethodCashOnDelivery:
	default:
		return errs.NewValidationError("payment_method", "invalid payment method")
	}

	return nil
}

func validateAddress(addr *models.Address) error {
	if addr.Line1 == "" {
		return errs.NewValidationError("shipping_address", "address line 1 is required")
	}
	if addr.City == "" {
		return errs.NewValidationError("shipping_address", "city is required")
	}
	if addr.Country == "" {
		return errs.NewValidationError("shipping_address", "country is required")
	}
	if len(addr.Country) != 2 {
		return errs.NewValidationError("shipping_address", "country must be a 2-letter ISO code")
	}
	return nil
}
