package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"orderengine/src/model"
	"orderengine/src/repository"
)

type mockOrderSearcher struct {
	orders        []model.Order
	err           error
	accountID     uint
	symbol        *string
	status        *string
	createdAfter  *time.Time
	createdBefore *time.Time
	limit         int
	offset        int
	calledCount   int
}

func (m *mockOrderSearcher) Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error) {
	m.calledCount++
	m.accountID = options.AccountID
	m.symbol = options.Symbol
	m.status = options.Status
	m.createdAfter = options.CreatedAfter
	m.createdBefore = options.CreatedBefore
	m.limit = options.Limit
	m.offset = options.Offset
	return m.orders, m.err
}

type mockOrderRetrier struct {
	err         error
	orderID     uint
	calledCount int
}

func (m *mockOrderRetrier) RetryOrder(ctx context.Context, orderID uint) error {
	m.calledCount++
	m.orderID = orderID
	return m.err
}

type mockProtectiveEnsurer struct {
	err           error
	transactionID uint
	calledCount   int
}

func (m *mockProtectiveEnsurer) EnsureProtectiveOrders(ctx context.Context, transactionID uint) error {
	m.calledCount++
	m.transactionID = transactionID
	return m.err
}

// withURLParam attaches a chi route parameter so handlers that read
// chi.URLParam can be exercised without a full router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, routeCtx))
}

func TestSearchOrdersHandler_MissingAccount(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_InvalidAccount(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/orders?accountId=abc", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_RepoError(t *testing.T) {
	mockRepo := &mockOrderSearcher{err: assert.AnError}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/orders?accountId=42", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}
}

func TestSearchOrdersHandler_Success(t *testing.T) {
	orders := []model.Order{{ID: 1, Symbol: "BTCUSDT"}}
	mockRepo := &mockOrderSearcher{orders: orders}
	handler := SearchOrdersHandler(mockRepo)

	req := httptest.NewRequest(http.MethodGet, "/orders?accountId=7&symbol=BTCUSDT&status=FILLED&createdFrom=2026-01-01T00:00:00Z&createdTo=2026-02-01T00:00:00Z&page=2&pageSize=5", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if mockRepo.calledCount != 1 {
		t.Fatalf("expected repository to be called once, got %d", mockRepo.calledCount)
	}

	if mockRepo.accountID != 7 {
		t.Fatalf("expected account ID 7, got %d", mockRepo.accountID)
	}

	if mockRepo.symbol == nil || *mockRepo.symbol != "BTCUSDT" {
		t.Fatalf("expected symbol BTCUSDT, got %v", mockRepo.symbol)
	}

	if mockRepo.status == nil || *mockRepo.status != "FILLED" {
		t.Fatalf("expected status filter FILLED, got %v", mockRepo.status)
	}

	if mockRepo.createdAfter == nil || mockRepo.createdBefore == nil {
		t.Fatalf("expected createdAt filters to be set")
	}

	if mockRepo.limit != 5 || mockRepo.offset != 5 {
		t.Fatalf("expected limit 5 and offset 5, got limit=%d offset=%d", mockRepo.limit, mockRepo.offset)
	}

	if rr.Body.String() == "" {
		t.Fatalf("expected response body to be set")
	}
}

func TestSearchOrdersHandler_InvalidPagination(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/orders?accountId=1&page=0", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSearchOrdersHandler_InvalidDate(t *testing.T) {
	handler := SearchOrdersHandler(&mockOrderSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/orders?accountId=1&createdFrom=invalid", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRetryOrderHandler_Success(t *testing.T) {
	mockService := &mockOrderRetrier{}
	handler := RetryOrderHandler(mockService)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/orders/9/retry", nil), "orderID", "9")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if mockService.orderID != 9 {
		t.Fatalf("expected order ID 9, got %d", mockService.orderID)
	}
}

func TestRetryOrderHandler_InvalidID(t *testing.T) {
	mockService := &mockOrderRetrier{}
	handler := RetryOrderHandler(mockService)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/orders/abc/retry", nil), "orderID", "abc")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	if mockService.calledCount != 0 {
		t.Fatalf("expected service not to be called, got %d calls", mockService.calledCount)
	}
}

func TestRetryOrderHandler_NotFound(t *testing.T) {
	handler := RetryOrderHandler(&mockOrderRetrier{err: repository.ErrNotFound})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/orders/404/retry", nil), "orderID", "404")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestRetryOrderHandler_NotRetryable(t *testing.T) {
	handler := RetryOrderHandler(&mockOrderRetrier{err: repository.ErrConstraintViolation})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/orders/5/retry", nil), "orderID", "5")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestEnsureProtectiveOrdersHandler_Success(t *testing.T) {
	mockService := &mockProtectiveEnsurer{}
	handler := EnsureProtectiveOrdersHandler(mockService)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/transactions/3/protective-orders", nil), "transactionID", "3")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if mockService.transactionID != 3 {
		t.Fatalf("expected transaction ID 3, got %d", mockService.transactionID)
	}
}

func TestEnsureProtectiveOrdersHandler_UnknownTransaction(t *testing.T) {
	handler := EnsureProtectiveOrdersHandler(&mockProtectiveEnsurer{err: repository.ErrNotFound})

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/transactions/404/protective-orders", nil), "transactionID", "404")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}
