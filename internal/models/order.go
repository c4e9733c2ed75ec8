package models

import "time"

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentMethod identifies how the buyer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cashOnDelivery"
)

// OrderItem is a line item inside an order. Unit prices are minor currency
// units read from the catalog at creation time, never from the client.
type OrderItem struct {
	ProductID string `json:"product_id"`
	VendorID  string `json:"vendor_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
}

// Address is the shipping destination for an order.
type Address struct {
	Line1      string `json:"line1"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Note       string `json:"note,omitempty"`
}

// PaymentDetails records the gateway settlement for a paid order.
// Set exactly once, on the pending -> paid transition.
type PaymentDetails struct {
	ProviderTransactionID string    `json:"provider_transaction_id"`
	PayerEmail            string    `json:"payer_email"`
	SettledAt             time.Time `json:"settled_at"`
}

// Order is the aggregate root. Line items and totals are immutable once the
// order leaves pending; the grand total always equals the sum of the parts.
type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	BuyerEmail      string          `json:"buyer_email"`
	BuyerName       string          `json:"buyer_name"`
	Items           []OrderItem     `json:"items"`
	ShippingAddress Address         `json:"shipping_address"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	ItemsTotal      int64           `json:"items_total"`
	ShippingTotal   int64           `json:"shipping_total"`
	TaxTotal        int64           `json:"tax_total"`
	GrandTotal      int64           `json:"grand_total"`
	Currency        string          `json:"currency"`
	TxRef           string          `json:"tx_ref"`
	Status          OrderStatus     `json:"status"`
	PaymentDetails  *PaymentDetails `json:"payment_details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusFailed:    {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from status.
func IsTerminal(status OrderStatus) bool {
	return len(validTransitions[status]) == 0
}

// CanCancel reports whether the buyer may still cancel the order.
func (o *Order) CanCancel() bool {
	return o.Status == OrderStatusPending
}

// HoldsReservation reports whether the order still holds a stock reservation
// that must be released on a terminal failure transition.
func (o *Order) HoldsReservation() bool {
	return o.Status == OrderStatusPending
}
