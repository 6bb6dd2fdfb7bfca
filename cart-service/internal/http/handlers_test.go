package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/marketcart/cart-service/internal/controller"
	"github.com/fjod/marketcart/cart-service/internal/domain"
	"github.com/fjod/marketcart/cart-service/internal/eligibility"
	"github.com/fjod/marketcart/cart-service/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStore struct {
	mu       sync.Mutex
	lines    map[string]map[string]domain.CartLine
	writeErr error
	cleared  []string
}

func newMemStore() *memStore {
	return &memStore{lines: make(map[string]map[string]domain.CartLine)}
}

func (s *memStore) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := &domain.Cart{UserID: userID}
	for _, l := range s.lines[userID] {
		cart.Lines = append(cart.Lines, l)
	}
	return cart, nil
}

func (s *memStore) SetLine(_ context.Context, userID string, line domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	if s.lines[userID] == nil {
		s.lines[userID] = make(map[string]domain.CartLine)
	}
	if line.Quantity == 0 {
		delete(s.lines[userID], line.ProductID)
		return nil
	}
	s.lines[userID][line.ProductID] = line
	return nil
}

func (s *memStore) ClearCart(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lines, userID)
	s.cleared = append(s.cleared, userID)
	return nil
}

type stubCatalog struct {
	products map[string]domain.Product
	vendors  map[string]domain.Vendor
	err      error
}

func (c *stubCatalog) Product(_ context.Context, id string) (domain.Product, error) {
	if c.err != nil {
		return domain.Product{}, c.err
	}
	p, ok := c.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (c *stubCatalog) Vendor(_ context.Context, id string) (domain.Vendor, error) {
	if c.err != nil {
		return domain.Vendor{}, c.err
	}
	v, ok := c.vendors[id]
	if !ok {
		return domain.Vendor{}, fmt.Errorf("vendor %s: %w", id, domain.ErrNotFound)
	}
	return v, nil
}

func (c *stubCatalog) Products(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product)
	for _, id := range ids {
		if p, err := c.Product(ctx, id); err == nil {
			out[id] = p
		}
	}
	return out, c.err
}

func (c *stubCatalog) Vendors(ctx context.Context, ids []string) (map[string]domain.Vendor, error) {
	out := make(map[string]domain.Vendor)
	for _, id := range ids {
		if v, err := c.Vendor(ctx, id); err == nil {
			out[id] = v
		}
	}
	return out, c.err
}

func fp(v float64) *float64 { return &v }

func newCatalog() *stubCatalog {
	return &stubCatalog{
		products: map[string]domain.Product{
			"rice": {
				ID: "rice", VendorID: "near", Name: "Rice 1kg", BasePrice: decimal.NewFromInt(100), Stock: 100,
				Tiering: domain.Tiering{Bulk: &domain.TierSpec{Price: decimal.NewFromInt(80), MinUnits: 10}},
			},
			"salt": {ID: "salt", VendorID: "far", Name: "Salt", BasePrice: decimal.NewFromInt(20), Stock: 10},
		},
		vendors: map[string]domain.Vendor{
			"near": {ID: "near", Latitude: fp(0.05), Longitude: fp(0), DeliveryRangeKm: fp(10), IsOnline: true, IsApproved: true},
			"far":  {ID: "far", Latitude: fp(0.1), Longitude: fp(0), DeliveryRangeKm: fp(10), IsOnline: true, IsApproved: true},
		},
	}
}

func pricingConfig() pricing.Config {
	return pricing.Config{
		DeliveryCharge:        decimal.NewFromInt(75),
		FreeDeliveryThreshold: decimal.NewFromInt(200),
		PlatformFeeRate:       decimal.RequireFromString("0.03"),
		GSTRate:               decimal.RequireFromString("0.05"),
	}
}

func newTestServer(t *testing.T, store *memStore, catalog *stubCatalog) http.Handler {
	t.Helper()
	registry := controller.NewRegistry(store, catalog, pricingConfig(), zap.NewNop())
	return NewRouter(RouterConfig{
		Carts:   registry,
		Catalog: catalog,
		Log:     zap.NewNop(),
		Timeout: 5 * time.Second,
	})
}

func do(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, newMemStore(), newCatalog())

	rr := do(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestCart_RequiresUser(t *testing.T) {
	h := newTestServer(t, newMemStore(), newCatalog())

	rr := do(t, h, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSetQuantity_CommitsTierPrice(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, newCatalog())

	rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 12, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp QuantityResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "committed", resp.State)
	assert.Equal(t, 12, resp.Result.Quantity)
	assert.Equal(t, "10 - max pcs", resp.Result.TierLabel)
	assert.True(t, resp.Result.UnitPrice.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "960.00", resp.Summary.Subtotal)
	assert.Equal(t, "0.00", resp.Summary.DeliveryCharge)

	cart, err := store.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 12, cart.Lines[0].Quantity)
}

func TestSetQuantity_Validation(t *testing.T) {
	h := newTestServer(t, newMemStore(), newCatalog())

	cases := map[string]any{
		"missing quantity":  map[string]any{"latitude": 0, "longitude": 0},
		"negative quantity": map[string]any{"quantity": -1, "latitude": 0, "longitude": 0},
		"missing location":  map[string]any{"quantity": 2},
		"half location":     map[string]any{"quantity": 2, "latitude": 0},
		"bad latitude":      map[string]any{"quantity": 2, "latitude": 120, "longitude": 0},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "invalid_request", decodeError(t, rr).Code)
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/rice", bytes.NewBufferString("{"))
		req.Header.Set(UserIDHeader, "u1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSetQuantity_ZeroWithoutLocationRemoves(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, newCatalog())

	rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 3, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	cart, err := store.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestSetQuantity_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		product   string
		setup     func(*memStore, *stubCatalog)
		status    int
		code      string
		retryable bool
	}{
		{name: "unknown product", product: "nope", status: http.StatusNotFound, code: "not_found"},
		{name: "out of range", product: "salt", status: http.StatusUnprocessableEntity, code: "out_of_delivery_range"},
		{
			name: "vendor offline", product: "rice",
			setup: func(_ *memStore, c *stubCatalog) {
				v := c.vendors["near"]
				v.IsOnline = false
				c.vendors["near"] = v
			},
			status: http.StatusUnprocessableEntity, code: "vendor_unavailable",
		},
		{
			name: "store down", product: "rice",
			setup:  func(s *memStore, _ *stubCatalog) { s.writeErr = errors.New("mongo down") },
			status: http.StatusServiceUnavailable, code: "network_failure", retryable: true,
		},
		{
			name: "catalog down", product: "rice",
			setup:  func(_ *memStore, c *stubCatalog) { c.err = errors.New("connection refused") },
			status: http.StatusServiceUnavailable, code: "network_failure", retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, catalog := newMemStore(), newCatalog()
			if tt.setup != nil {
				tt.setup(store, catalog)
			}
			h := newTestServer(t, store, catalog)

			rr := do(t, h, http.MethodPut, "/api/v1/cart/items/"+tt.product, "u1",
				map[string]any{"quantity": 2, "latitude": 0, "longitude": 0})
			assert.Equal(t, tt.status, rr.Code)

			resp := decodeError(t, rr)
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.retryable, resp.Retryable)
		})
	}
}

func TestGetCart_WithVendorStatuses(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, newCatalog())

	rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 2, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/cart?lat=0&lon=0", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var view controller.View
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	require.Len(t, view.Lines, 1)
	assert.Equal(t, "Rice 1kg", view.Lines[0].Name)
	assert.Equal(t, "200.00", view.Summary.Subtotal)
	require.Len(t, view.Vendors, 1)
	assert.True(t, view.Vendors[0].IsEligible)

	rr = do(t, h, http.MethodGet, "/api/v1/cart", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	view = controller.View{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&view))
	assert.Empty(t, view.Vendors)

	rr = do(t, h, http.MethodGet, "/api/v1/cart?lat=abc&lon=0", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveItemAndClearCart(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, newCatalog())

	rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 1, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodDelete, "/api/v1/cart/items/rice", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp QuantityResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Result.Quantity)
	assert.Equal(t, 0, resp.Summary.ItemCount)

	rr = do(t, h, http.MethodDelete, "/api/v1/cart", "u1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"u1"}, store.cleared)
}

func TestProductTiers(t *testing.T) {
	h := newTestServer(t, newMemStore(), newCatalog())

	rr := do(t, h, http.MethodGet, "/api/v1/products/rice/tiers?quantity=12", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"max_qty":null`)

	var resp TiersResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "80.00", resp.EffectivePrice)
	require.Len(t, resp.Tiers, 2)
	assert.False(t, resp.Tiers[0].IsActive)
	assert.True(t, resp.Tiers[1].IsActive)

	rr = do(t, h, http.MethodGet, "/api/v1/products/rice/tiers?quantity=-2", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/products/nope/tiers", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestVendorEligibility(t *testing.T) {
	h := newTestServer(t, newMemStore(), newCatalog())

	rr := do(t, h, http.MethodGet, "/api/v1/vendors/far/eligibility?lat=0&lon=0", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var status eligibility.Status
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&status))
	assert.False(t, status.IsEligible)
	assert.Equal(t, eligibility.ReasonOutOfRange, status.Reason)
	assert.Equal(t, "need to be ~2 km closer", status.Message)

	rr = do(t, h, http.MethodGet, "/api/v1/vendors/far/eligibility", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodGet, "/api/v1/vendors/ghost/eligibility?lat=0&lon=0", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetQuantity_RollbackReportsKeptQuantity(t *testing.T) {
	store := newMemStore()
	h := newTestServer(t, store, newCatalog())

	rr := do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 2, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusOK, rr.Code)

	store.mu.Lock()
	store.writeErr = errors.New("mongo down")
	store.mu.Unlock()

	rr = do(t, h, http.MethodPut, "/api/v1/cart/items/rice", "u1",
		map[string]any{"quantity": 5, "latitude": 0, "longitude": 0})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	resp := decodeError(t, rr)
	assert.True(t, resp.Retryable)
	assert.Equal(t, "rolled_back", resp.State)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 2, resp.Result.Quantity)
	assert.Equal(t, 5, resp.Result.Requested)
}

func TestErrorResponseFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: qty", controller.ErrValidation), http.StatusBadRequest, "invalid_request"},
		{controller.ErrSuperseded, http.StatusConflict, "superseded"},
		{controller.ErrCartCleared, http.StatusGone, "cart_cleared"},
		{fmt.Errorf("vendor v1: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, resp := errorResponseFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
