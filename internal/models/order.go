package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the status of an order
type OrderStatus string

// StatusReceived is set when the order row is created
const StatusReceived OrderStatus = "received"

// Product is a menu entry that can be added to the cart
type Product struct {
	ID    int64           `json:"id" db:"id"`
	Name  string          `json:"name" db:"name"`
	Price decimal.Decimal `json:"price" db:"price"`
}

// Order is the parent row created before line items are submitted
type Order struct {
	ID           int64       `json:"id" db:"id"`
	CustomerName string      `json:"customer_name" db:"customer_name"`
	Status       OrderStatus `json:"status" db:"status"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// OrderItemRecord is one persisted line of an order. UnitPrice is the price
// at submission time and is never re-derived from the product.
type OrderItemRecord struct {
	ID        int64           `json:"id,omitempty" db:"id"`
	OrderID   int64           `json:"order_id" db:"order_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Variant   string          `json:"variant,omitempty" db:"variant"`
	Quantity  int             `json:"quantity" db:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	CreatedAt time.Time       `json:"created_at,omitempty" db:"created_at"`
}

// LineTotal returns unit price × quantity
func (r OrderItemRecord) LineTotal() decimal.Decimal {
	return r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
}

// OrderDetail is what the order detail screen reads
type OrderDetail struct {
	Order       Order             `json:"order"`
	Items       []OrderItemRecord `json:"items"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

// NewOrderDetail builds a detail view and derives its total from the items
func NewOrderDetail(order Order, items []OrderItemRecord) *OrderDetail {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return &OrderDetail{Order: order, Items: items, TotalAmount: total}
}

// ErrOrderNotFound is returned when no order has the requested id
var ErrOrderNotFound = errors.New("order not found")

// ErrProductNotFound is returned when the menu has no product with the requested id
var ErrProductNotFound = errors.New("product not found")
