package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"forex-trading-engine/internal/broker"
	"forex-trading-engine/internal/orchestrator"
	"forex-trading-engine/internal/statecache"
)

func testServer() *Server {
	b := broker.NewMockBroker()
	orch := orchestrator.New(b, nil, nil, nil, orchestrator.Config{}, zerolog.Nop())
	states := statecache.New(nil, zerolog.Nop())
	return New(Config{Host: "127.0.0.1", Port: 0}, b, orch, nil, states, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, testServer(), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatsEndpoint(t *testing.T) {
	rec := get(t, testServer(), "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats orchestrator.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Cycles != 0 {
		t.Errorf("fresh orchestrator cycles = %d", stats.Cycles)
	}
}

func TestPositionsEndpoint(t *testing.T) {
	s := testServer()
	s.broker.(*broker.MockBroker).AddPosition(broker.Position{
		Symbol: "EURUSD", Side: broker.SideBuy, Volume: 0.5,
	})

	rec := get(t, s, "/api/positions?symbol=EURUSD")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Positions []broker.Position `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Positions) != 1 || body.Positions[0].Symbol != "EURUSD" {
		t.Errorf("positions = %+v", body.Positions)
	}
}

func TestPortfolioEndpointWithoutGatekeeper(t *testing.T) {
	rec := get(t, testServer(), "/api/portfolio")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no gatekeeper is wired", rec.Code)
	}
}

func TestManagementEndpoint(t *testing.T) {
	rec := get(t, testServer(), "/api/management")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
