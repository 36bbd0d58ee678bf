package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/coordinator"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/governor"
	"github.com/ScientiaCapital/trading-backtesting-sub000/internal/risk"
)

func newTestServer(t *testing.T) (*Server, *coordinator.Coordinator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zerolog.Nop()

	tuner := risk.NewLiveStrategyTuner(nil, logger)
	coord := coordinator.New(nil, coordinator.Deps{
		Tuner:    tuner,
		Gate:     risk.NewGate(nil, tuner, logger),
		Governor: governor.New(nil, nil, logger),
	}, logger)

	return NewServer(DefaultServerConfig(), coord, tuner, NewWSHub(logger), logger), coord
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestGetPerformanceEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/performance", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var state governor.PerformanceState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("response is not a performance state: %v", err)
	}
	if state.Target != 300 || state.LossLimit != 300 {
		t.Errorf("expected default limits 300/300, got %f/%f", state.Target, state.LossLimit)
	}
	if state.State != governor.StateNormal {
		t.Errorf("expected NORMAL state, got %s", state.State)
	}
}

func TestGetRiskPolicyEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/policy", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var policy risk.PolicySnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &policy); err != nil {
		t.Fatalf("response is not a policy snapshot: %v", err)
	}
	if policy.State != risk.TunerActive {
		t.Errorf("expected ACTIVE tuner, got %s", policy.State)
	}
}

func TestManualHaltRequiresReason(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coordinator/halt", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without reason, got %d", w.Code)
	}
}

func TestManualHaltAndReset(t *testing.T) {
	s, coord := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coordinator/halt", strings.NewReader(`{"reason":"operator stop"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !coord.Halted() {
		t.Error("coordinator should be halted after manual halt")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/coordinator/status", nil)
	s.Router().ServeHTTP(w, req)
	var status map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("status response invalid: %v", err)
	}
	if status["halted"] != true {
		t.Error("status should report halted")
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/coordinator/reset", nil)
	s.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d", w.Code)
	}
	if coord.Halted() {
		t.Error("coordinator should accept cycles after reset")
	}
}
