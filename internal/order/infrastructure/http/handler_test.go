package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	invdomain "github.com/dmehra2102/order-ledger/internal/inventory/domain"
	notifdomain "github.com/dmehra2102/order-ledger/internal/notification/domain"
	"github.com/dmehra2102/order-ledger/internal/order/application"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/internal/order/infrastructure/memory"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, int64, string, string, notifdomain.Kind, int64) error {
	return nil
}

type testServer struct {
	store  *memory.Store
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.AddCustomer(domain.Customer{ID: 1, Name: "Acme"})
	store.AddProduct(invdomain.Product{ID: 10, Name: "Laptop", Price: decimal.RequireFromString("20.00"), StockQuantity: 10, Active: true})
	store.AddProduct(invdomain.Product{ID: 11, Name: "Mouse", Price: decimal.RequireFromString("5.00"), StockQuantity: 2, Active: true})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := application.NewService(log, store, store, nopNotifier{})
	r := chi.NewRouter()
	r.Mount("/orders", NewHandler(log, svc).Routes())
	return &testServer{store: store, router: r}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(UserHeader, "7")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) stock(t *testing.T, id int64) int {
	t.Helper()
	p, ok := s.store.Product(id)
	require.True(t, ok)
	return p.StockQuantity
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_id": 1,
		"items":       []map[string]any{{"product_id": 10, "quantity": 3}},
		"notes":       "fragile",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[orderResp](t, rec)
	assert.Equal(t, 60.0, created.TotalAmount)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, int64(7), created.CreatedBy)
	require.Len(t, created.Items, 1)
	assert.Equal(t, "Laptop", created.Items[0].ProductName)
	assert.Equal(t, 20.0, created.Items[0].PriceAtOrder)
	assert.Equal(t, 7, s.stock(t, 10))

	rec = s.do(t, http.MethodPut, "/orders/1/status", map[string]string{"status": "cancelled"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeBody[orderResp](t, rec)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, 60.0, cancelled.TotalAmount)
	assert.Equal(t, 10, s.stock(t, 10))

	rec = s.do(t, http.MethodGet, "/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/orders/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Order deleted successfully"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/orders/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     any
		wantCode int
		wantKind string
	}{
		{
			name:     "empty items",
			method:   http.MethodPost,
			path:     "/orders",
			body:     map[string]any{"customer_id": 1, "items": []any{}},
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "malformed body",
			method:   http.MethodPost,
			path:     "/orders",
			body:     "{not json",
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
		{
			name:     "unknown customer",
			method:   http.MethodPost,
			path:     "/orders",
			body:     map[string]any{"customer_id": 99, "items": []map[string]any{{"product_id": 10, "quantity": 1}}},
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "unknown product",
			method:   http.MethodPost,
			path:     "/orders",
			body:     map[string]any{"customer_id": 1, "items": []map[string]any{{"product_id": 99, "quantity": 1}}},
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "insufficient stock",
			method:   http.MethodPost,
			path:     "/orders",
			body:     map[string]any{"customer_id": 1, "items": []map[string]any{{"product_id": 11, "quantity": 3}}},
			wantCode: http.StatusBadRequest,
			wantKind: "insufficient_stock",
		},
		{
			name:     "invalid status on create",
			method:   http.MethodPost,
			path:     "/orders",
			body:     map[string]any{"customer_id": 1, "status": "lost", "items": []map[string]any{{"product_id": 10, "quantity": 1}}},
			wantCode: http.StatusBadRequest,
			wantKind: "invalid_status",
		},
		{
			name:     "missing order",
			method:   http.MethodGet,
			path:     "/orders/42",
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "non numeric id",
			method:   http.MethodDelete,
			path:     "/orders/abc",
			wantCode: http.StatusNotFound,
			wantKind: "not_found",
		},
		{
			name:     "bad page",
			method:   http.MethodGet,
			path:     "/orders?page=x",
			wantCode: http.StatusBadRequest,
			wantKind: "validation",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, tc.method, tc.path, tc.body)

			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tc.wantKind, decodeBody[errorResp](t, rec).Error)
			assert.Equal(t, 10, s.stock(t, 10))
			assert.Equal(t, 2, s.stock(t, 11))
		})
	}
}

func TestUpdateOrder_ReplacesItems(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/orders", map[string]any{
		"customer_id": 1,
		"items":       []map[string]any{{"product_id": 10, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPut, "/orders/1", map[string]any{
		"notes": "gift wrap",
		"items": []map[string]any{{"product_id": 11, "quantity": 2, "price": "4.25"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[orderResp](t, rec)
	assert.Equal(t, 8.5, updated.TotalAmount)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "gift wrap", *updated.Notes)
	assert.Equal(t, 10, s.stock(t, 10))
	assert.Equal(t, 0, s.stock(t, 11))

	rec = s.do(t, http.MethodPut, "/orders/1", map[string]any{
		"items": []map[string]any{{"product_id": 10, "quantity": 11}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, s.stock(t, 11))
}

func TestListAndStats(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/orders", map[string]any{
			"customer_id": 1,
			"items":       []map[string]any{{"product_id": 10, "quantity": 1}},
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := s.do(t, http.MethodPut, "/orders/2/status", map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/orders?per_page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[listResp](t, rec)
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Pages)
	assert.Equal(t, 1, list.CurrentPage)
	assert.Len(t, list.Orders, 2)

	rec = s.do(t, http.MethodGet, "/orders/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody[statsResp](t, rec)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 20.0, stats.TotalRevenue)
}

func TestRequireUser(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/orders/stats", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
