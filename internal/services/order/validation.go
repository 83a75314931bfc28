package order

import (
	"fmt"
	"strconv"
	"strings"

	"menu-orders/internal/cart"
)

const (
	maxCustomerNameLength = 100
	maxOrderLines         = 50
)

func validateCustomerName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ValidationError{
			Field:   "customer_name",
			Message: "customer name is required",
		}
	}

	if len(name) > maxCustomerNameLength {
		return ValidationError{
			Field:   "customer_name",
			Message: fmt.Sprintf("customer name must be at most %d characters", maxCustomerNameLength),
		}
	}
	return nil
}

// parseOrderID accepts the canonical string form of an order id
func parseOrderID(orderID string) (int64, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return 0, ValidationError{
			Field:   "order_id",
			Message: "order id is required",
		}
	}

	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil || id <= 0 {
		return 0, ValidationError{
			Field:   "order_id",
			Message: "order id must be a positive integer",
		}
	}
	return id, nil
}

func validateItems(items []cart.Item) error {
	if len(items) == 0 {
		return ValidationError{
			Field:   "items",
			Message: "cart is empty",
		}
	}

	if len(items) > maxOrderLines {
		return ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("a maximum of %d lines is allowed", maxOrderLines),
		}
	}

	for i, item := range items {
		if err := validateItem(item, i); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(item cart.Item, index int) error {
	if item.ProductID <= 0 {
		return ValidationError{
			Field:   fmt.Sprintf("items[%d].product_id", index),
			Message: "product id is required",
		}
	}

	if item.Quantity <= 0 {
		return ValidationError{
			Field:   fmt.Sprintf("items[%d].quantity", index),
			Message: "item quantity must be greater than 0",
		}
	}

	if item.UnitPrice.IsNegative() {
		return ValidationError{
			Field:   fmt.Sprintf("items[%d].unit_price", index),
			Message: "item price must not be negative",
		}
	}
	return nil
}
