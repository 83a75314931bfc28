package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"menu-orders/internal/cart"
	"menu-orders/internal/logger"
	"menu-orders/internal/models"
)

const sessionHeader = "X-Session-ID"

// Handler handles HTTP requests for the cart and checkout
type Handler struct {
	service  *Service
	sessions *cart.Sessions
	logger   *logger.Logger
	timeout  time.Duration
}

// NewHandler creates a new order handler
func NewHandler(service *Service, sessions *cart.Sessions, log *logger.Logger, timeout time.Duration) *Handler {
	return &Handler{
		service:  service,
		sessions: sessions,
		logger:   log,
		timeout:  timeout,
	}
}

type addItemRequest struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type checkoutRequest struct {
	CustomerName string `json:"customer_name"`
	OrderID      string `json:"order_id,omitempty"`
}

type cartResponse struct {
	Items []cart.Item     `json:"items"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   string `json:"details,omitempty"`
	Hint      string `json:"hint,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id"`
}

// SetupRoutes sets up the HTTP routes
func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.withLogging)
	r.Use(middleware.Timeout(h.timeout))

	r.Get("/health", h.HealthCheck)
	r.Get("/products", h.ListProducts)
	r.Get("/orders/{orderID}", h.GetOrder)

	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Get("/cart", h.GetCart)
		r.Post("/cart/items", h.AddItem)
		r.Patch("/cart/items/{productID}", h.UpdateQuantity)
		r.Delete("/cart/items/{productID}", h.RemoveItem)
		r.Post("/checkout", h.Checkout)
		r.Delete("/session", h.EndSession)
	})

	return r
}

// GetCart handles GET /cart requests
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, h.cartFor(r))
}

// AddItem handles POST /cart/items requests
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	product, err := h.service.FindProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	store := h.cartFor(r)
	if err := store.AddItem(*product, req.Variant, req.Quantity); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}
	h.writeCart(w, store)
}

// UpdateQuantity handles PATCH /cart/items/{productID} requests
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}

	var req updateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	store := h.cartFor(r)
	store.UpdateQuantity(ref, req.Quantity)
	h.writeCart(w, store)
}

// RemoveItem handles DELETE /cart/items/{productID} requests
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.itemRef(w, r)
	if !ok {
		return
	}

	store := h.cartFor(r)
	store.RemoveItem(ref)
	h.writeCart(w, store)
}

// Checkout handles POST /checkout requests
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "Invalid JSON format")
		return
	}

	result, err := h.service.Checkout(r.Context(), h.cartFor(r), req.CustomerName, req.OrderID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}

// EndSession handles DELETE /session requests
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(r.Header.Get(sessionHeader))
	w.WriteHeader(http.StatusNoContent)
}

// GetOrder handles GET /orders/{orderID} requests
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// ListProducts handles GET /products requests
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, products)
}

// HealthCheck handles GET /health requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthy := h.service.HealthCheck(ctx)

	response := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "order-service",
		"sessions":  h.sessions.Len(),
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		response["status"] = "unhealthy"
	}
	h.writeJSON(w, status, response)
}

func (h *Handler) cartFor(r *http.Request) *cart.Store {
	return h.sessions.Get(r.Header.Get(sessionHeader))
}

func (h *Handler) itemRef(w http.ResponseWriter, r *http.Request) (cart.ItemRef, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		h.writeErrorResponse(w, r, http.StatusBadRequest, "product id must be an integer")
		return cart.ItemRef{}, false
	}
	return cart.ItemRef{ProductID: productID, Variant: r.URL.Query().Get("variant")}, true
}

func (h *Handler) writeCart(w http.ResponseWriter, store *cart.Store) {
	items := store.Items()
	if items == nil {
		items = []cart.Item{}
	}
	h.writeJSON(w, http.StatusOK, cartResponse{
		Items: items,
		Count: store.Count(),
		Total: store.Total(),
	})
}

// writeServiceError maps service errors onto HTTP statuses. A failed
// checkout also reports the order id to retry against.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr ValidationError
	var writeErr *RemoteWriteError
	var checkoutErr *CheckoutError

	resp := errorResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if errors.As(err, &checkoutErr) {
		resp.OrderID = checkoutErr.OrderID
	}

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		resp.Error = validationErr.Error()
	case errors.As(err, &writeErr):
		status = http.StatusBadGateway
		resp.Error = writeErr.Error()
		resp.Code = writeErr.StoreErr.Code
		resp.Details = writeErr.StoreErr.Detail
		resp.Hint = writeErr.StoreErr.Hint
	case errors.Is(err, cart.ErrCheckoutInProgress):
		status = http.StatusConflict
		resp.Error = err.Error()
	case errors.Is(err, models.ErrOrderNotFound), errors.Is(err, models.ErrProductNotFound):
		status = http.StatusNotFound
		resp.Error = err.Error()
	default:
		h.logger.Error("request_failed", "Unhandled service error", resp.RequestID, err, nil)
		resp.Error = "Internal server error"
	}
	h.writeJSON(w, status, resp)
}

// writeErrorResponse writes an error response in JSON format
func (h *Handler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	h.writeJSON(w, statusCode, errorResponse{
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response_encoding_failed", "Failed to encode response", "", err, nil)
	}
}

// requireSession rejects cart requests without a session id
func requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(sessionHeader) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(errorResponse{
				Error:     sessionHeader + " header is required",
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				RequestID: middleware.GetReqID(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging middleware
func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.Debug("request_completed",
			fmt.Sprintf("%s %s - %d", r.Method, r.URL.Path, ww.Status()),
			requestID,
			map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
	})
}
