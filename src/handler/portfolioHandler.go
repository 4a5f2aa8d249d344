package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/connectors"
	"tradeledger/src/gate"
	"tradeledger/src/model"
	"tradeledger/src/valuation"
)

type portfolioValuator interface {
	Summarize(ctx context.Context, strategyName string) (*valuation.Summary, error)
	ValuatePosition(ctx context.Context, strategyName, ticker string) (*valuation.PositionView, error)
}

type positionCloser interface {
	ClosePosition(ctx context.Context, strategyName, ticker string) (*model.Order, error)
}

type accountReader interface {
	GetAccount(ctx context.Context) (*connectors.Account, error)
}

// PortfolioSummaryHandler returns valued positions with aggregate P&L,
// optionally filtered by strategy.
func PortfolioSummaryHandler(svc portfolioValuator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := svc.Summarize(r.Context(), r.URL.Query().Get("strategy"))
		if err != nil {
			logger.WithError(err).Error("failed to build portfolio summary")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

type closePositionPayload struct {
	StrategyName string `json:"strategy_name"`
	Ticker       string `json:"ticker"`
}

// ClosePositionHandler submits an opposite-side market order for the full
// position quantity. A flat position closes to a no-op.
func ClosePositionHandler(svc positionCloser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload closePositionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if payload.Ticker == "" {
			writeError(w, http.StatusBadRequest, "ticker is required")
			return
		}

		order, err := svc.ClosePosition(r.Context(), payload.StrategyName, payload.Ticker)
		if err != nil {
			if errors.Is(err, gate.ErrTradingDisabled) {
				writeError(w, http.StatusLocked, err.Error())
				return
			}
			logger.WithError(err).Error("failed to close position")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if order == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "position already flat"})
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

// AccountHandler passes the venue account snapshot through read-only.
func AccountHandler(venue accountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := venue.GetAccount(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to fetch venue account")
			writeError(w, http.StatusBadGateway, "venue unavailable")
			return
		}
		writeJSON(w, http.StatusOK, account)
	}
}
