package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloud-wave-best-zizon/stock-order-service/internal/domain"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/events"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/repository"
	"github.com/cloud-wave-best-zizon/stock-order-service/internal/service"
	"github.com/cloud-wave-best-zizon/stock-order-service/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store := repository.NewMemoryStore()

	orders := service.NewOrderService(store, events.NopPublisher{}, events.NopPublisher{}, logger,
		service.RetryPolicy{Attempts: 3, Delay: time.Millisecond})
	catalog := service.NewCatalogService(store, logger)

	router := gin.New()
	router.Use(middleware.RequestID())
	Register(router.Group("/api/v1"), middleware.HeaderIdentity{},
		NewOrderHandler(orders, logger), NewCatalogHandler(catalog, logger))
	return router
}

func do(t *testing.T, r *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOrderEndpoints(t *testing.T) {
	r := newTestRouter()

	w := do(t, r, http.MethodPost, "/api/v1/items", "u1", gin.H{"item_id": "I1", "name": "widget", "unit_price": "10", "quantity": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/orders", "u1", gin.H{
		"order_id":         "O1",
		"customer_id":      "C1",
		"discount_percent": "10",
		"lines":            []gin.H{{"item_id": "I1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order domain.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &order))
	assert.Equal(t, "27", order.FinalAmount.String())

	w = do(t, r, http.MethodPost, "/api/v1/orders", "u1", gin.H{
		"order_id":    "O2",
		"customer_id": "C1",
		"lines":       []gin.H{{"item_id": "I1", "quantity": 3}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"available":2`)

	w = do(t, r, http.MethodGet, "/api/v1/orders/O1", "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPut, "/api/v1/orders/O1/status", "u1", gin.H{"status": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/orders/O1", "u1", gin.H{"discount_percent": "50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"final_amount":"15"`)

	w = do(t, r, http.MethodDelete, "/api/v1/orders/O1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/orders/O1/history", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entry domain.OrderHistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entry))
	assert.Equal(t, domain.UnknownCustomerName, entry.CustomerName)

	w = do(t, r, http.MethodGet, "/api/v1/items", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"quantity":5`)
}

func TestRequestsNeedIdentityAndValidBody(t *testing.T) {
	r := newTestRouter()

	w := do(t, r, http.MethodGet, "/api/v1/orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/orders", "u1", gin.H{"order_id": "O1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/orders", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"orders":[],"count":0}`, w.Body.String())
}

func TestCustomerEndpoints(t *testing.T) {
	r := newTestRouter()

	customer := gin.H{"customer_id": "C1", "name": "Alice", "nic": "123456789V", "address": "1 Main Street", "contact_no": "0771234567"}
	w := do(t, r, http.MethodPost, "/api/v1/customers", "u1", customer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	customer["customer_id"] = "C2"
	customer["contact_no"] = "123"
	w = do(t, r, http.MethodPost, "/api/v1/customers", "u1", customer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	customer["contact_no"] = "0777654321"
	customer["nic"] = "200012345678"
	w = do(t, r, http.MethodPost, "/api/v1/customers", "u1", customer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/customers", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = do(t, r, http.MethodGet, "/api/v1/customers", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"customers":[],"count":0}`, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/customers/C1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Alice"`)

	w = do(t, r, http.MethodGet, "/api/v1/customers/C1", "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/customers/C1", "u1", gin.H{"address": "2 Hill Road", "contact_no": "0711111111"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated domain.Customer
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, "2 Hill Road", updated.Address)
	assert.Equal(t, "0711111111", updated.ContactNo)

	w = do(t, r, http.MethodPatch, "/api/v1/customers/C1", "u1", gin.H{"nic": "200012345678"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/customers/C1", "u1", gin.H{"nic": "12345"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodPatch, "/api/v1/customers/C1", "u1", gin.H{"contact_no": "07712"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodDelete, "/api/v1/customers/C1", "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/customers/C1", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestItemEndpoints(t *testing.T) {
	r := newTestRouter()

	w := do(t, r, http.MethodPost, "/api/v1/items", "u1", gin.H{"item_id": "I1", "name": "widget", "unit_price": "10", "quantity": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, "/api/v1/items/I1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"widget"`)

	w = do(t, r, http.MethodGet, "/api/v1/items/I1", "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/v1/orders", "u1", gin.H{
		"order_id":    "O1",
		"customer_id": "C1",
		"lines":       []gin.H{{"item_id": "I1", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodDelete, "/api/v1/items/I1", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "still on order O1")

	w = do(t, r, http.MethodDelete, "/api/v1/orders/O1", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodDelete, "/api/v1/items/I1", "u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodDelete, "/api/v1/items/I1", "u1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/items/I1", "u1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(domain.NotFoundError("order", "x")))
	assert.Equal(t, http.StatusConflict, statusFor(&domain.StockError{ItemID: "x"}))
	assert.Equal(t, http.StatusConflict, statusFor(domain.ErrConflict))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.ErrInvalidStatus))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.InvalidInputError("bad")))
	assert.Equal(t, http.StatusInternalServerError, statusFor(domain.ErrStorage))
}
