package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"orderengine/src/model"
	"orderengine/src/repository"
)

type orderSearcher interface {
	Search(ctx context.Context, options repository.OrderSearchOptions) ([]model.Order, error)
}

type orderRetrier interface {
	RetryOrder(ctx context.Context, orderID uint) error
}

type protectiveEnsurer interface {
	EnsureProtectiveOrders(ctx context.Context, transactionID uint) error
}

// SearchOrdersHandler returns a handler that lists orders for an account.
// Supports pagination and filters (symbol, status, createdFrom, createdTo).
func SearchOrdersHandler(repo orderSearcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountParam := r.URL.Query().Get("accountId")
		accountID, err := strconv.ParseUint(accountParam, 10, 64)
		if err != nil || accountID == 0 {
			http.Error(w, "invalid accountId", http.StatusBadRequest)
			return
		}

		options := repository.OrderSearchOptions{AccountID: uint(accountID)}

		if symbolParam := r.URL.Query().Get("symbol"); symbolParam != "" {
			options.Symbol = &symbolParam
		}
		if statusParam := r.URL.Query().Get("status"); statusParam != "" {
			options.Status = &statusParam
		}
		if createdFromParam := r.URL.Query().Get("createdFrom"); createdFromParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdFromParam)
			if err != nil {
				http.Error(w, "invalid createdFrom", http.StatusBadRequest)
				return
			}
			options.CreatedAfter = &parsed
		}
		if createdToParam := r.URL.Query().Get("createdTo"); createdToParam != "" {
			parsed, err := time.Parse(time.RFC3339, createdToParam)
			if err != nil {
				http.Error(w, "invalid createdTo", http.StatusBadRequest)
				return
			}
			options.CreatedBefore = &parsed
		}

		page := 1
		if pageParam := r.URL.Query().Get("page"); pageParam != "" {
			parsedPage, err := strconv.Atoi(pageParam)
			if err != nil || parsedPage <= 0 {
				http.Error(w, "invalid page", http.StatusBadRequest)
				return
			}
			page = parsedPage
		}

		pageSize := 20
		if sizeParam := r.URL.Query().Get("pageSize"); sizeParam != "" {
			parsedSize, err := strconv.Atoi(sizeParam)
			if err != nil || parsedSize <= 0 {
				http.Error(w, "invalid pageSize", http.StatusBadRequest)
				return
			}
			pageSize = parsedSize
		}

		options.Limit = pageSize
		options.Offset = (page - 1) * pageSize

		orders, err := repo.Search(r.Context(), options)
		if err != nil {
			logger.WithError(err).Error("order search failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"orders":   orders,
			"page":     page,
			"pageSize": pageSize,
		})
	}
}

// RetryOrderHandler exposes the explicit operator retry for ERROR orders.
func RetryOrderHandler(service orderRetrier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := strconv.ParseUint(chi.URLParam(r, "orderID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid order id", http.StatusBadRequest)
			return
		}

		if err := service.RetryOrder(r.Context(), uint(orderID)); err != nil {
			writeActionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"result": "retried"})
	}
}

// EnsureProtectiveOrdersHandler triggers the idempotent protective-order
// reconciliation for one transaction.
func EnsureProtectiveOrdersHandler(service protectiveEnsurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID, err := strconv.ParseUint(chi.URLParam(r, "transactionID"), 10, 64)
		if err != nil {
			http.Error(w, "invalid transaction id", http.StatusBadRequest)
			return
		}

		if err := service.EnsureProtectiveOrders(r.Context(), uint(transactionID)); err != nil {
			writeActionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"result": "ensured"})
	}
}

func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, repository.ErrConstraintViolation):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		logger.WithError(err).Error("operator action failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode JSON response")
	}
}
