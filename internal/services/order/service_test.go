package order

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menu-orders/internal/cart"
	"menu-orders/internal/logger"
	"menu-orders/internal/models"
	"menu-orders/internal/query"
)

type fakeStore struct {
	mu          sync.Mutex
	nextOrderID int64
	insertCalls int
	insertErr   error
	items       []models.OrderItemRecord
	products    []models.Product
}

func (f *fakeStore) InsertOrder(ctx context.Context, customerName string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrderID++
	return &models.Order{ID: f.nextOrderID, CustomerName: customerName, Status: models.StatusReceived}, nil
}

func (f *fakeStore) InsertOrderItems(ctx context.Context, records []models.OrderItemRecord) ([]models.OrderItemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	out := make([]models.OrderItemRecord, len(records))
	for i, r := range records {
		r.ID = int64(len(f.items) + 1)
		f.items = append(f.items, r)
		out[i] = r
	}
	return out, nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var items []models.OrderItemRecord
	for _, r := range f.items {
		if r.OrderID == orderID {
			items = append(items, r)
		}
	}
	if orderID > f.nextOrderID {
		return nil, models.ErrOrderNotFound
	}
	return models.NewOrderDetail(models.Order{ID: orderID}, items), nil
}

func (f *fakeStore) ListProducts(ctx context.Context) ([]models.Product, error) {
	return f.products, nil
}

type fakeNotifier struct {
	msgs []interface{}
	err  error
}

func (f *fakeNotifier) PublishNotification(ctx context.Context, msg interface{}) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type harness struct {
	svc         *Service
	store       *fakeStore
	notifier    *fakeNotifier
	invalidated []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: &fakeStore{products: []models.Product{
			{ID: 1, Name: "Margherita", Price: decimal.RequireFromString("9.50")},
			{ID: 2, Name: "Cola", Price: decimal.RequireFromString("2.00")},
		}},
		notifier: &fakeNotifier{},
	}
	queries := query.NewClient(query.NewMemoryCache(time.Minute), logger.Discard())
	queries.OnInvalidate(func(key query.Key) { h.invalidated = append(h.invalidated, key.String()) })
	h.svc = NewService(h.store, queries, h.notifier, logger.Discard())
	return h
}

func (h *harness) cartWith(t *testing.T, quantities map[int64]int) *cart.Store {
	t.Helper()
	store := cart.NewStore(h.svc, logger.Discard())
	for _, p := range h.store.products {
		if q, ok := quantities[p.ID]; ok {
			require.NoError(t, store.AddItem(p, "", q))
		}
	}
	return store
}

func TestSubmitOrder_Validation(t *testing.T) {
	items := []cart.Item{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(5)}}

	tests := []struct {
		name    string
		orderID string
		items   []cart.Item
		field   string
	}{
		{name: "empty cart", orderID: "1", items: nil, field: "items"},
		{name: "missing order id", orderID: "", items: items, field: "order_id"},
		{name: "non numeric order id", orderID: "abc", items: items, field: "order_id"},
		{name: "zero quantity", orderID: "1", items: []cart.Item{{ProductID: 1, Quantity: 0}}, field: "items[0].quantity"},
		{name: "negative price", orderID: "1", items: []cart.Item{{ProductID: 1, Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}, field: "items[0].unit_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.svc.SubmitOrder(context.Background(), tt.orderID, tt.items)

			var vErr ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
			assert.Zero(t, h.store.insertCalls)
			assert.Empty(t, h.invalidated)
		})
	}
}

func TestSubmitOrder_CopiesPriceAndInvalidates(t *testing.T) {
	h := newHarness(t)
	items := []cart.Item{
		{ProductID: 1, Variant: "large", Quantity: 2, UnitPrice: decimal.RequireFromString("9.50")},
		{ProductID: 2, Quantity: 1, UnitPrice: decimal.RequireFromString("2.00")},
	}

	records, err := h.svc.SubmitOrder(context.Background(), "42", items)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int64(42), records[0].OrderID)
	assert.Equal(t, "large", records[0].Variant)
	assert.True(t, records[0].UnitPrice.Equal(decimal.RequireFromString("9.50")))
	assert.Equal(t, 1, h.store.insertCalls)
	assert.Equal(t, []string{"products", "orders"}, h.invalidated)

	require.Len(t, h.notifier.msgs, 1)
	msg := h.notifier.msgs[0].(*models.NotificationMessage)
	assert.Equal(t, models.NotificationNewOrder, msg.Data["type"])
	assert.Equal(t, "42", msg.Data["orderId"])
}

func TestSubmitOrder_RemoteFailurePreservesMessage(t *testing.T) {
	h := newHarness(t)
	h.store.insertErr = &models.StoreError{
		Message: "duplicate key value violates unique constraint",
		Code:    "23505",
		Hint:    "retry later",
	}

	_, err := h.svc.SubmitOrder(context.Background(), "7", []cart.Item{{ProductID: 1, Quantity: 1}})

	var wErr *RemoteWriteError
	require.True(t, errors.As(err, &wErr))
	assert.Equal(t, "duplicate key value violates unique constraint", err.Error())
	assert.Equal(t, "23505", wErr.StoreErr.Code)
	assert.Equal(t, "retry later", wErr.StoreErr.Hint)
	assert.Empty(t, h.invalidated)
	assert.Empty(t, h.notifier.msgs)
}

func TestSubmitOrder_RemoteFailureWithoutMessageUsesFallback(t *testing.T) {
	for name, storeErr := range map[string]error{
		"empty store message": &models.StoreError{Code: "XX000"},
		"transport error":     errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.store.insertErr = storeErr

			_, err := h.svc.SubmitOrder(context.Background(), "7", []cart.Item{{ProductID: 1, Quantity: 1}})

			var wErr *RemoteWriteError
			require.True(t, errors.As(err, &wErr))
			assert.Equal(t, fallbackStoreMessage, err.Error())
		})
	}
}

func TestSubmitOrder_NotifierFailureDoesNotFailSubmission(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("broker down")

	records, err := h.svc.SubmitOrder(context.Background(), "3", []cart.Item{{ProductID: 1, Quantity: 1}})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCheckout_EmptyCartMakesNoCalls(t *testing.T) {
	h := newHarness(t)
	store := cart.NewStore(h.svc, logger.Discard())

	_, err := h.svc.Checkout(context.Background(), store, "Ann", "")

	var vErr ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Zero(t, h.store.nextOrderID)
	assert.Zero(t, h.store.insertCalls)
	assert.Empty(t, h.invalidated)
}

func TestCheckout_SuccessClearsCartAndInvalidates(t *testing.T) {
	h := newHarness(t)
	store := h.cartWith(t, map[int64]int{1: 2, 2: 3})

	result, err := h.svc.Checkout(context.Background(), store, "Ann", "")
	require.NoError(t, err)

	assert.Equal(t, "1", result.OrderID)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, "25", result.TotalAmount.String())
	assert.True(t, store.IsEmpty())
	assert.Contains(t, h.invalidated, "products")
	assert.Contains(t, h.invalidated, "orders")
}

func TestCheckout_FailureKeepsCartAndAllowsRetry(t *testing.T) {
	h := newHarness(t)
	store := h.cartWith(t, map[int64]int{1: 1})
	h.store.insertErr = &models.StoreError{Message: "insert rejected"}

	_, err := h.svc.Checkout(context.Background(), store, "Ann", "")
	require.Error(t, err)
	assert.Equal(t, "insert rejected", err.Error())
	assert.Len(t, store.Items(), 1)
	assert.Equal(t, "9.5", store.Total().String())

	var checkoutErr *CheckoutError
	require.True(t, errors.As(err, &checkoutErr))
	require.NotEmpty(t, checkoutErr.OrderID)
	var wErr *RemoteWriteError
	assert.True(t, errors.As(err, &wErr))

	h.store.insertErr = nil
	h.invalidated = nil
	result, err := h.svc.Checkout(context.Background(), store, "Ann", checkoutErr.OrderID)
	require.NoError(t, err)
	assert.Equal(t, checkoutErr.OrderID, result.OrderID)
	assert.True(t, store.IsEmpty())
	assert.Equal(t, []string{"products", "orders"}, h.invalidated)
	assert.Equal(t, int64(1), h.store.nextOrderID, "retry must not create another order")
}

func TestCheckout_TotalMatchesPersistedRecords(t *testing.T) {
	h := newHarness(t)
	store := h.cartWith(t, map[int64]int{1: 1, 2: 2})

	result, err := h.svc.Checkout(context.Background(), store, "Ann", "")
	require.NoError(t, err)

	want := decimal.Zero
	for _, r := range result.Items {
		want = want.Add(r.LineTotal())
	}
	assert.True(t, want.Equal(result.TotalAmount))
	assert.Equal(t, "13.5", result.TotalAmount.String())
}

func TestSubmitOrder_LogsCallerRequestID(t *testing.T) {
	h := newHarness(t)
	var buf bytes.Buffer
	h.svc.logger = logger.NewWithWriter("order-service", &buf)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-123")
	_, err := h.svc.SubmitOrder(ctx, "5", []cart.Item{{ProductID: 1, Quantity: 1}})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"request_id":"req-123"`)
}

func TestGetOrder_RefreshesAfterSubmission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, err := h.svc.CreateOrder(ctx, "Ann")
	require.NoError(t, err)

	detail, err := h.svc.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, detail.Items)

	_, err = h.svc.SubmitOrder(ctx, "1", []cart.Item{{ProductID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(4)}})
	require.NoError(t, err)

	detail, err = h.svc.GetOrder(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, detail.Order.ID)
	assert.Len(t, detail.Items, 1)
	assert.Equal(t, "8", detail.TotalAmount.String())
}

func TestCreateOrder_RequiresCustomerName(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.CreateOrder(context.Background(), "  ")

	var vErr ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "customer_name", vErr.Field)
}

func TestFindProduct(t *testing.T) {
	h := newHarness(t)

	p, err := h.svc.FindProduct(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "Cola", p.Name)

	_, err = h.svc.FindProduct(context.Background(), 99)
	assert.ErrorIs(t, err, models.ErrProductNotFound)
}
