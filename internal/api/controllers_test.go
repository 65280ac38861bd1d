package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"spot-trader/internal/engine"
	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/internal/monitor"
	"spot-trader/internal/risk"
	"spot-trader/pkg/db"
)

type fakeService struct {
	halted     bool
	haltReason string
	closed     []string
	flattened  bool
}

func (f *fakeService) GetSystemStatus(context.Context) *engine.SystemStatus {
	return &engine.SystemStatus{Mode: "test", Halted: f.halted, HaltReason: f.haltReason}
}

func (f *fakeService) GetPositions(context.Context) []engine.PositionInfo {
	return []engine.PositionInfo{
		{ID: "p1", Symbol: "BTCUSDT", Side: "BUY", Qty: 0.5, EntryPrice: 50000},
	}
}

func (f *fakeService) GetClosedPositions(context.Context, int) ([]engine.ClosedPositionInfo, error) {
	return nil, nil
}

func (f *fakeService) GetRecentOrders(context.Context, int) ([]engine.OrderInfo, error) {
	return []engine.OrderInfo{{ID: "ord-1", Symbol: "BTCUSDT", Status: "FILLED"}}, nil
}

func (f *fakeService) GetRiskMetrics(context.Context) risk.Metrics {
	return risk.Metrics{DailyPnL: -12.5, DailyTrades: 3}
}

func (f *fakeService) GetBalance(context.Context) engine.BalanceInfo {
	return engine.BalanceInfo{Available: 9000, Locked: 1000, Total: 10000}
}

func (f *fakeService) GetMetrics(context.Context) monitor.MetricsSnapshot {
	return monitor.MetricsSnapshot{}
}

func (f *fakeService) GetDailyStats(context.Context, string) (db.DayStats, error) {
	return db.DayStats{}, nil
}

func (f *fakeService) Halt(_ context.Context, reason string) error {
	f.halted = true
	f.haltReason = reason
	return nil
}

func (f *fakeService) Resume(context.Context) error {
	f.halted = false
	f.haltReason = ""
	return nil
}

func (f *fakeService) ClosePosition(_ context.Context, id string) error {
	if id != "p1" {
		return ledger.ErrNotFound
	}
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeService) FlattenAll(context.Context, string) error {
	f.flattened = true
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := &fakeService{}
	s := NewServer(Config{
		Engine:      svc,
		Bus:         events.NewBus(),
		Metrics:     monitor.NewSystemMetrics(),
		JWTSecret:   "test-secret",
		OperatorKey: "hunter2",
	})

	ts := httptest.NewServer(s.Router)
	t.Cleanup(ts.Close)
	return ts, svc
}

func loginToken(t *testing.T, ts *httptest.Server, key string) (string, int) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"key": key})
	resp, err := http.Post(ts.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.Token, resp.StatusCode
}

func authedRequest(t *testing.T, ts *httptest.Server, token, method, path string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	return resp
}

func TestLoginIssuesToken(t *testing.T) {
	ts, _ := newTestServer(t)

	token, status := loginToken(t, ts, "hunter2")
	if status != http.StatusOK || token == "" {
		t.Fatalf("login = %d token %q, want 200 with token", status, token)
	}

	_, status = loginToken(t, ts, "wrong-key")
	if status != http.StatusUnauthorized {
		t.Errorf("bad key login = %d, want 401", status)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/positions")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated positions = %d, want 401", resp.StatusCode)
	}
}

func TestGetPositions(t *testing.T) {
	ts, _ := newTestServer(t)
	token, _ := loginToken(t, ts, "hunter2")

	resp := authedRequest(t, ts, token, http.MethodGet, "/api/positions", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("positions = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Count     int                   `json:"count"`
		Positions []engine.PositionInfo `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || out.Positions[0].Symbol != "BTCUSDT" {
		t.Errorf("positions = %+v, want one BTCUSDT entry", out)
	}
}

func TestHaltAndResume(t *testing.T) {
	ts, svc := newTestServer(t)
	token, _ := loginToken(t, ts, "hunter2")

	body, _ := json.Marshal(map[string]string{"reason": "maintenance"})
	resp := authedRequest(t, ts, token, http.MethodPost, "/api/halt", body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("halt = %d, want 200", resp.StatusCode)
	}
	if !svc.halted || svc.haltReason != "maintenance" {
		t.Errorf("service halted = %v %q, want true maintenance", svc.halted, svc.haltReason)
	}

	resp = authedRequest(t, ts, token, http.MethodPost, "/api/resume", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume = %d, want 200", resp.StatusCode)
	}
	if svc.halted {
		t.Error("service must not be halted after resume")
	}
}

func TestClosePosition(t *testing.T) {
	ts, svc := newTestServer(t)
	token, _ := loginToken(t, ts, "hunter2")

	resp := authedRequest(t, ts, token, http.MethodPost, "/api/positions/p1/close", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close = %d, want 200", resp.StatusCode)
	}
	if len(svc.closed) != 1 || svc.closed[0] != "p1" {
		t.Errorf("closed = %v, want [p1]", svc.closed)
	}

	resp = authedRequest(t, ts, token, http.MethodPost, "/api/positions/nope/close", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("close unknown = %d, want 404", resp.StatusCode)
	}
}

func TestGetOrders(t *testing.T) {
	ts, _ := newTestServer(t)
	token, _ := loginToken(t, ts, "hunter2")

	resp := authedRequest(t, ts, token, http.MethodGet, "/api/orders?limit=10", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("orders = %d, want 200", resp.StatusCode)
	}

	var out struct {
		Count  int                `json:"count"`
		Orders []engine.OrderInfo `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || out.Orders[0].ID != "ord-1" {
		t.Errorf("orders = %+v, want one ord-1 entry", out)
	}
}
