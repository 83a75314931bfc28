package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"menu-orders/internal/models"
)

// InsertOrder creates the parent order row and returns it with its id
func (db *DB) InsertOrder(ctx context.Context, customerName string) (*models.Order, error) {
	var order models.Order
	err := db.Pool.QueryRow(ctx, InsertOrderSQL, customerName, models.StatusReceived).Scan(
		&order.ID,
		&order.CustomerName,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &order, nil
}

// InsertOrderItems writes all records with one statement inside one
// transaction. Either every row is committed or none is.
func (db *DB) InsertOrderItems(ctx context.Context, records []models.OrderItemRecord) ([]models.OrderItemRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	sql, args := buildInsertOrderItems(records)

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, translateError(err)
	}
	inserted, err := scanOrderItems(rows)
	if err != nil {
		return nil, translateError(err)
	}
	if len(inserted) != len(records) {
		return nil, &models.StoreError{
			Message: fmt.Sprintf("inserted %d of %d order items", len(inserted), len(records)),
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, translateError(err)
	}
	return inserted, nil
}

// GetOrder returns an order with its items
func (db *DB) GetOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	var order models.Order
	err := db.Pool.QueryRow(ctx, GetOrderByIDSQL, orderID).Scan(
		&order.ID,
		&order.CustomerName,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrOrderNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}

	rows, err := db.Pool.Query(ctx, ListOrderItemsSQL, orderID)
	if err != nil {
		return nil, translateError(err)
	}
	items, err := scanOrderItems(rows)
	if err != nil {
		return nil, translateError(err)
	}

	return models.NewOrderDetail(order, items), nil
}

// ListProducts returns the menu
func (db *DB) ListProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := db.Pool.Query(ctx, ListProductsSQL)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price); err != nil {
			return nil, translateError(err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return products, nil
}

func buildInsertOrderItems(records []models.OrderItemRecord) (string, []interface{}) {
	const cols = 5

	var sb strings.Builder
	sb.WriteString(insertOrderItemsPrefix)

	args := make([]interface{}, 0, len(records)*cols)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5)
		args = append(args, r.OrderID, r.ProductID, r.Variant, r.Quantity, r.UnitPrice)
	}
	sb.WriteString(insertOrderItemsReturning)

	return sb.String(), args
}

func scanOrderItems(rows pgx.Rows) ([]models.OrderItemRecord, error) {
	defer rows.Close()

	var items []models.OrderItemRecord
	for rows.Next() {
		var item models.OrderItemRecord
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Variant,
			&item.Quantity,
			&item.UnitPrice,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// translateError turns a PostgreSQL error into the store's structured error.
// Other errors pass through unchanged.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &models.StoreError{
			Message: pgErr.Message,
			Code:    pgErr.Code,
			Hint:    pgErr.Hint,
			Detail:  pgErr.Detail,
		}
	}
	return err
}
