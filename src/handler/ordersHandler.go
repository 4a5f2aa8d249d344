package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/gate"
	"tradeledger/src/model"
	"tradeledger/src/repository"
)

type orderSubmitter interface {
	SubmitOrder(ctx context.Context, req *gate.SubmitRequest) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID uint) error
}

type orderReader interface {
	FindByID(ctx context.Context, id uint) (*model.Order, error)
	FindLatest(ctx context.Context, strategyName string, limit int) ([]model.Order, error)
	Statistics(ctx context.Context, strategyName string) (*repository.OrderStatistics, error)
}

type submitOrderPayload struct {
	StrategyName string           `json:"strategy_name"`
	Ticker       string           `json:"ticker"`
	Side         string           `json:"side"`
	Type         string           `json:"type"`
	Quantity     decimal.Decimal  `json:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
}

// SubmitOrderHandler returns a handler that validates and submits an order
// through the trading gate.
func SubmitOrderHandler(svc orderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload submitOrderPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		req, err := gate.NewSubmitRequest(payload.StrategyName, payload.Ticker,
			payload.Side, payload.Type, payload.Quantity, payload.LimitPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		order, err := svc.SubmitOrder(r.Context(), req)
		if err != nil {
			var rejection *gate.RejectionError
			switch {
			case errors.Is(err, gate.ErrTradingDisabled):
				writeError(w, http.StatusLocked, err.Error())
			case errors.Is(err, gate.ErrInsufficientPosition):
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			case errors.As(err, &rejection):
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"error": rejection.Error(),
					"order": order,
				})
			case errors.Is(err, gate.ErrSubmissionUnresolved):
				// The order may or may not exist at the venue; the
				// reconciler will resolve it. Hand back the provisional row.
				writeJSON(w, http.StatusAccepted, map[string]interface{}{
					"warning": err.Error(),
					"order":   order,
				})
			default:
				logger.WithError(err).Error("order submission failed")
				writeError(w, http.StatusInternalServerError, "Internal Server Error")
			}
			return
		}

		writeJSON(w, http.StatusCreated, order)
	}
}

// GetOrderHandler returns a handler that fetches one order by ledger ID.
func GetOrderHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		order, err := repo.FindByID(r.Context(), uint(id))
		if err != nil {
			logger.WithError(err).Error("failed to fetch order")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if order == nil {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

// ListOrdersHandler returns a handler that lists the latest orders,
// optionally filtered by strategy.
func ListOrdersHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = parsed
		}

		orders, err := repo.FindLatest(r.Context(), r.URL.Query().Get("strategy"), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list orders")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

// CancelOrderHandler returns a handler that requests venue cancellation of
// an open order.
func CancelOrderHandler(svc orderSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid order id")
			return
		}

		if err := svc.CancelOrder(r.Context(), uint(id)); err != nil {
			if errors.Is(err, gate.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			logger.WithError(err).Error("failed to cancel order")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
	}
}

// OrderStatisticsHandler returns a handler with aggregate order counts and
// fill ratio, optionally per strategy.
func OrderStatisticsHandler(repo orderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Statistics(r.Context(), r.URL.Query().Get("strategy"))
		if err != nil {
			logger.WithError(err).Error("failed to compute order statistics")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
