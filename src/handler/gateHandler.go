package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/model"
)

type gateController interface {
	Activate(ctx context.Context, reason, changedBy string) (*model.TradingGate, error)
	Deactivate(ctx context.Context, reason, changedBy string) (*model.TradingGate, error)
	Status(ctx context.Context) (*model.TradingGate, error)
	EmergencyStop(ctx context.Context, strategyName, reason, stoppedBy string) error
}

type gateAuditReader interface {
	Transitions(ctx context.Context, limit int) ([]model.GateTransition, error)
}

type gateChangePayload struct {
	Reason    string `json:"reason"`
	ChangedBy string `json:"changed_by"`
}

// GateStatusHandler reports whether the kill switch is engaged.
func GateStatusHandler(svc gateController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.Status(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to read gate status")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// GateActivateHandler engages the kill switch; submissions are rejected
// until it is released.
func GateActivateHandler(svc gateController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload gateChangePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		status, err := svc.Activate(r.Context(), payload.Reason, payload.ChangedBy)
		if err != nil {
			logger.WithError(err).Error("failed to engage kill switch")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// GateDeactivateHandler releases the kill switch.
func GateDeactivateHandler(svc gateController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload gateChangePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		status, err := svc.Deactivate(r.Context(), payload.Reason, payload.ChangedBy)
		if err != nil {
			logger.WithError(err).Error("failed to release kill switch")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// GateTransitionsHandler lists the most recent kill switch flips.
func GateTransitionsHandler(repo gateAuditReader) http.HandlerFunc {
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

		transitions, err := repo.Transitions(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list gate transitions")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, transitions)
	}
}

type emergencyStopPayload struct {
	StrategyName string `json:"strategy_name"`
	Reason       string `json:"reason"`
	StoppedBy    string `json:"stopped_by"`
}

// EmergencyStopHandler closes open positions and then engages the kill
// switch, in that order, so the close orders are not blocked by the gate.
func EmergencyStopHandler(svc gateController) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload emergencyStopPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if err := svc.EmergencyStop(r.Context(), payload.StrategyName, payload.Reason, payload.StoppedBy); err != nil {
			logger.WithError(err).Error("emergency stop failed")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "emergency stop executed"})
	}
}
