package database

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menu-orders/internal/models"
)

func TestBuildInsertOrderItems(t *testing.T) {
	records := []models.OrderItemRecord{
		{OrderID: 42, ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("9.50")},
		{OrderID: 42, ProductID: 3, Variant: "large", Quantity: 1, UnitPrice: decimal.RequireFromString("2.00")},
	}

	sql, args := buildInsertOrderItems(records)

	assert.Equal(t, 1, strings.Count(sql, "INSERT INTO order_items"))
	assert.Contains(t, sql, "($1, $2, $3, $4, $5), ($6, $7, $8, $9, $10)")
	assert.Contains(t, sql, "RETURNING id, order_id")
	require.Len(t, args, 10)
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, "large", args[7])
}

func TestTranslateError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Message: `insert or update on table "order_items" violates foreign key constraint`,
		Code:    "23503",
		Detail:  `Key (product_id)=(99) is not present in table "products".`,
		Hint:    "check the product id",
	}

	err := translateError(pgErr)

	var storeErr *models.StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, pgErr.Message, storeErr.Message)
	assert.Equal(t, "23503", storeErr.Code)
	assert.Equal(t, pgErr.Detail, storeErr.Detail)
	assert.Equal(t, "check the product id", storeErr.Hint)
}

func TestTranslateError_PassesOtherErrorsThrough(t *testing.T) {
	plain := errors.New("connection reset")
	assert.Same(t, plain, translateError(plain))
}

func TestMigrationNames_Sorted(t *testing.T) {
	names, err := migrationNames(migrationFS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_init.sql", names[0])
}
