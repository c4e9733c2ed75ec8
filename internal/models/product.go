package models

// Product is the read-only catalog view the order flow depends on. Stock is
// owned by the catalog but mutated only through the inventory guard.
type Product struct {
	ID       string `json:"id"`
	VendorID string `json:"vendor_id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Stock    int    `json:"stock"`
	Image    string `json:"image,omitempty"`
}

// CartItem is a client-supplied cart entry. Only the product reference and
// quantity are trusted; prices are re-read from the catalog.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Buyer is the authenticated identity supplied by the auth collaborator.
type Buyer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateOrderRequest is the order-creation input exposed to the UI layer.
type CreateOrderRequest struct {
	Items           []CartItem    `json:"items"`
	ShippingAddress Address       `json:"shipping_address"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
}
