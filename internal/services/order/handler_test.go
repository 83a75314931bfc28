package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"menu-orders/internal/cart"
	"menu-orders/internal/logger"
	"menu-orders/internal/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *harness) {
	t.Helper()
	h := newHarness(t)
	sessions := cart.NewSessions(h.svc, logger.Discard())
	handler := NewHandler(h.svc, sessions, logger.Discard(), 5*time.Second)

	srv := httptest.NewServer(handler.SetupRoutes())
	t.Cleanup(srv.Close)
	return srv, h
}

func doJSON(t *testing.T, method, url, session string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeader, session)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHandler_CartFlow(t *testing.T) {
	srv, h := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 1, Quantity: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "19", body["total"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 2, Quantity: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["count"])

	resp, body = doJSON(t, http.MethodPatch, srv.URL+"/cart/items/2", "s1", updateQuantityRequest{Quantity: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["items"], 1)

	// another session sees its own cart
	_, body = doJSON(t, http.MethodGet, srv.URL+"/cart", "s2", nil)
	assert.Empty(t, body["items"])

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "1", body["order_id"])
	assert.Len(t, h.store.items, 1)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/cart", "s1", nil)
	assert.Empty(t, body["items"])
}

func TestHandler_CheckoutErrors(t *testing.T) {
	srv, h := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 1, Quantity: 1})
	h.store.insertErr = &models.StoreError{Message: "insert rejected", Code: "23503", Detail: "missing product"}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "insert rejected", body["error"])
	assert.Equal(t, "23503", body["code"])
	assert.Equal(t, "missing product", body["details"])
	orderID, _ := body["order_id"].(string)
	require.NotEmpty(t, orderID)

	_, body = doJSON(t, http.MethodGet, srv.URL+"/cart", "s1", nil)
	assert.Len(t, body["items"], 1)

	h.store.insertErr = nil
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann", OrderID: orderID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, orderID, body["order_id"])
	assert.Equal(t, int64(1), h.store.nextOrderID)
}

type blockingStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) InsertOrderItems(ctx context.Context, records []models.OrderItemRecord) ([]models.OrderItemRecord, error) {
	b.entered <- struct{}{}
	<-b.release
	return b.fakeStore.InsertOrderItems(ctx, records)
}

func TestHandler_ConcurrentCheckoutConflicts(t *testing.T) {
	h := newHarness(t)
	blocking := &blockingStore{fakeStore: h.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.svc.store = blocking
	sessions := cart.NewSessions(h.svc, logger.Discard())
	srv := httptest.NewServer(NewHandler(h.svc, sessions, logger.Discard(), 5*time.Second).SetupRoutes())
	t.Cleanup(srv.Close)

	doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 1, Quantity: 1})

	first := make(chan int, 1)
	go func() {
		resp, _ := doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann", OrderID: "1"})
		first <- resp.StatusCode
	}()
	<-blocking.entered

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/checkout", "s1", checkoutRequest{CustomerName: "Ann", OrderID: "1"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "1", body["order_id"])

	close(blocking.release)
	assert.Equal(t, http.StatusCreated, <-first)
}

func TestHandler_RequiresSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], sessionHeader)
}

func TestHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 99, Quantity: 1})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/orders/5", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/orders/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_EndSession(t *testing.T) {
	srv, _ := newTestServer(t)

	doJSON(t, http.MethodPost, srv.URL+"/cart/items", "s1", addItemRequest{ProductID: 1, Quantity: 1})
	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/session", "s1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body := doJSON(t, http.MethodGet, srv.URL+"/cart", "s1", nil)
	assert.Empty(t, body["items"])
}

func TestHandler_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}
