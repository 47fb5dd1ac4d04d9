package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

type mockUpstream struct{ connected bool }

func (m *mockUpstream) IsConnected() bool { return m.connected }

type mockRuleStore struct{ total int }

func (m *mockRuleStore) Total() int { return m.total }

type mockDBChecker struct{ err error }

func (m *mockDBChecker) Ping(_ context.Context) error { return m.err }

func newTestServer(connected bool, ruleCount int) *Server {
	return NewServer(":0", &mockUpstream{connected: connected}, &mockRuleStore{total: ruleCount}, nil, zap.NewNop())
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := newTestServer(false, 0)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestReadyzNotReadyWhenUpstreamDisconnected(t *testing.T) {
	s := newTestServer(false, 10)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["upstream"] != "disconnected" {
		t.Errorf("expected upstream disconnected, got %v", checks["upstream"])
	}
}

func TestReadyzNotReadyWhenRulesNotLoaded(t *testing.T) {
	s := newTestServer(true, 0)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestReadyzReadyWhenUpstreamConnectedAndRulesLoaded(t *testing.T) {
	s := newTestServer(true, 10)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ready" {
		t.Errorf("expected ready, got %v", body["status"])
	}
}

func TestReadyzReflectsDBCheckerFailure(t *testing.T) {
	s := newTestServer(true, 10)
	s.dbChecker = &mockDBChecker{err: context.DeadlineExceeded}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	checks := body["checks"].(map[string]any)
	if checks["postgres"] != "error" {
		t.Errorf("expected postgres error, got %v", checks["postgres"])
	}
}
