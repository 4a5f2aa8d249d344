package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"tradeledger/src/model"
)

func newTestRouter(pattern string, h http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Handle(pattern, h)
	return r
}

type mockGateController struct {
	state      model.TradingGate
	err        error
	stopCalls  int
	lastReason string
}

func (m *mockGateController) Activate(_ context.Context, reason, _ string) (*model.TradingGate, error) {
	m.lastReason = reason
	m.state.Active = true
	m.state.Reason = reason
	clone := m.state
	return &clone, m.err
}

func (m *mockGateController) Deactivate(_ context.Context, reason, _ string) (*model.TradingGate, error) {
	m.lastReason = reason
	m.state.Active = false
	clone := m.state
	return &clone, m.err
}

func (m *mockGateController) Status(_ context.Context) (*model.TradingGate, error) {
	clone := m.state
	return &clone, m.err
}

func (m *mockGateController) EmergencyStop(_ context.Context, _, reason, _ string) error {
	m.stopCalls++
	m.lastReason = reason
	return m.err
}

func TestGateStatusHandler(t *testing.T) {
	mock := &mockGateController{state: model.TradingGate{ID: 1, Active: true, Reason: "incident"}}
	handler := GateStatusHandler(mock)

	req := httptest.NewRequest(http.MethodGet, "/v2/gate", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"active":true`)
	assert.Contains(t, rr.Body.String(), "incident")
}

func TestGateActivateHandler(t *testing.T) {
	mock := &mockGateController{}
	handler := GateActivateHandler(mock)

	body := `{"reason":"maintenance","changed_by":"ops"}`
	req := httptest.NewRequest(http.MethodPost, "/v2/gate/activate", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "maintenance", mock.lastReason)
	assert.True(t, mock.state.Active)
}

func TestGateActivateHandler_BadBody(t *testing.T) {
	mock := &mockGateController{}
	handler := GateActivateHandler(mock)

	req := httptest.NewRequest(http.MethodPost, "/v2/gate/activate", strings.NewReader("{"))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, mock.state.Active)
}

func TestEmergencyStopHandler(t *testing.T) {
	mock := &mockGateController{}
	handler := EmergencyStopHandler(mock)

	body := `{"strategy_name":"s1","reason":"fat finger","stopped_by":"ops"}`
	req := httptest.NewRequest(http.MethodPost, "/v2/gate/emergency-stop", strings.NewReader(body))
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, mock.stopCalls)
	assert.Equal(t, "fat finger", mock.lastReason)
}
