package order

import (
	"context"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"menu-orders/internal/cart"
	"menu-orders/internal/logger"
	"menu-orders/internal/models"
	"menu-orders/internal/query"
)

var (
	productsKey = query.Key{"products"}
	ordersKey   = query.Key{"orders"}
)

// Store is the remote record store the service writes to
type Store interface {
	InsertOrder(ctx context.Context, customerName string) (*models.Order, error)
	InsertOrderItems(ctx context.Context, records []models.OrderItemRecord) ([]models.OrderItemRecord, error)
	GetOrder(ctx context.Context, orderID int64) (*models.OrderDetail, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
}

// Notifier delivers push notifications to admin devices
type Notifier interface {
	PublishNotification(ctx context.Context, msg interface{}) error
}

// Service turns cart state into persisted order items
type Service struct {
	store    Store
	queries  *query.Client
	notifier Notifier
	logger   *logger.Logger
}

// NewService creates the order submission service
func NewService(store Store, queries *query.Client, notifier Notifier, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		queries:  queries,
		notifier: notifier,
		logger:   log,
	}
}

// CheckoutResult is what a completed checkout hands back to the caller
type CheckoutResult struct {
	OrderID     string                   `json:"order_id"`
	Items       []models.OrderItemRecord `json:"items"`
	TotalAmount decimal.Decimal          `json:"total_amount"`
}

// SubmitOrder writes one record per cart line for orderID as a single batch.
// Products and orders queries are invalidated only when the batch commits.
func (s *Service) SubmitOrder(ctx context.Context, orderID string, items []cart.Item) ([]models.OrderItemRecord, error) {
	requestID := requestIDFrom(ctx)

	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	records := buildRecords(id, items)

	inserted, err := query.Mutate(ctx, s.queries, func(ctx context.Context) ([]models.OrderItemRecord, error) {
		return s.store.InsertOrderItems(ctx, records)
	}, productsKey, ordersKey)
	if err != nil {
		writeErr := newRemoteWriteError(err)
		s.logger.Error("order_submit_failed", "Failed to submit order items", requestID, err, map[string]interface{}{
			"order_id":   orderID,
			"item_count": len(records),
			"code":       writeErr.StoreErr.Code,
		})
		return nil, writeErr
	}

	s.logger.Info("order_submitted", "Order items stored", requestID, map[string]interface{}{
		"order_id":   orderID,
		"item_count": len(inserted),
	})

	s.notifyAdmins(ctx, orderID, len(inserted), requestID)
	return inserted, nil
}

// CreateOrder creates the parent order row that items are submitted against
func (s *Service) CreateOrder(ctx context.Context, customerName string) (*models.Order, error) {
	if err := validateCustomerName(customerName); err != nil {
		return nil, err
	}

	order, err := query.Mutate(ctx, s.queries, func(ctx context.Context) (*models.Order, error) {
		return s.store.InsertOrder(ctx, customerName)
	}, ordersKey)
	if err != nil {
		return nil, newRemoteWriteError(err)
	}
	return order, nil
}

// Checkout submits the session cart. When orderID is empty a new order is
// created first. A failure after that returns a *CheckoutError carrying the
// order id; passing it back retries against the same order.
func (s *Service) Checkout(ctx context.Context, store *cart.Store, customerName, orderID string) (*CheckoutResult, error) {
	if store.IsEmpty() {
		return nil, ValidationError{Field: "items", Message: "cart is empty"}
	}

	if orderID == "" {
		order, err := s.CreateOrder(ctx, customerName)
		if err != nil {
			return nil, err
		}
		orderID = strconv.FormatInt(order.ID, 10)
	}

	records, err := store.Checkout(ctx, orderID)
	if err != nil {
		return nil, &CheckoutError{OrderID: orderID, Err: err}
	}

	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.LineTotal())
	}

	return &CheckoutResult{
		OrderID:     orderID,
		Items:       records,
		TotalAmount: total,
	}, nil
}

// GetOrder reads an order and its items through the query cache
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.OrderDetail, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}

	return query.Fetch(ctx, s.queries, query.Key{"orders", strconv.FormatInt(id, 10)}, func(ctx context.Context) (*models.OrderDetail, error) {
		return s.store.GetOrder(ctx, id)
	})
}

// ListProducts reads the menu through the query cache
func (s *Service) ListProducts(ctx context.Context) ([]models.Product, error) {
	return query.Fetch(ctx, s.queries, productsKey, s.store.ListProducts)
}

// FindProduct looks a product up in the cached menu
func (s *Service) FindProduct(ctx context.Context, productID int64) (*models.Product, error) {
	products, err := s.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == productID {
			return &products[i], nil
		}
	}
	return nil, models.ErrProductNotFound
}

// HealthCheck reports whether the product list can be read
func (s *Service) HealthCheck(ctx context.Context) bool {
	_, err := s.store.ListProducts(ctx)
	return err == nil
}

func (s *Service) notifyAdmins(ctx context.Context, orderID string, itemCount int, requestID string) {
	if s.notifier == nil {
		return
	}

	msg := models.NewOrderNotification(orderID, itemCount)
	if err := s.notifier.PublishNotification(ctx, msg); err != nil {
		s.logger.Error("notification_publish_failed", "Failed to notify admins about new order", requestID, err, map[string]interface{}{
			"order_id": orderID,
		})
	}
}

// requestIDFrom carries the HTTP request id into service logs
func requestIDFrom(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return logger.GenerateRequestID()
}

func buildRecords(orderID int64, items []cart.Item) []models.OrderItemRecord {
	records := make([]models.OrderItemRecord, 0, len(items))
	for _, item := range items {
		records = append(records, models.OrderItemRecord{
			OrderID:   orderID,
			ProductID: item.ProductID,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return records
}
