package database

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (customer_name, status)
		VALUES ($1, $2)
		RETURNING id, customer_name, status, created_at, updated_at`

	GetOrderByIDSQL = `
		SELECT id, customer_name, status, created_at, updated_at
		FROM orders WHERE id = $1`

	ListOrderItemsSQL = `
		SELECT id, order_id, product_id, variant, quantity, unit_price, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`

	// insertOrderItemsPrefix is completed with one VALUES tuple per record
	insertOrderItemsPrefix = `
		INSERT INTO order_items (order_id, product_id, variant, quantity, unit_price)
		VALUES `

	insertOrderItemsReturning = `
		RETURNING id, order_id, product_id, variant, quantity, unit_price, created_at`
)

// Product queries
const (
	ListProductsSQL = `
		SELECT id, name, price
		FROM products
		ORDER BY id ASC`
)
