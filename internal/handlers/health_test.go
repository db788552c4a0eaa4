package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckReportsHealthyWhenIdle(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	w := httptest.NewRecorder()
	env.h.HealthCheck(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != statusHealthy {
		t.Errorf("expected status healthy, got %q", resp.Status)
	}
	if !resp.Ready {
		t.Error("expected ready=true when no scan is running")
	}
}

func TestLivenessCheckAlwaysOK(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/livez", http.NoBody)
	w := httptest.NewRecorder()
	env.h.LivenessCheck(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestLivenessCheckHeadHasNoBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodHead, "/livez", http.NoBody)
	w := httptest.NewRecorder()
	env.h.LivenessCheck(w, req)

	if w.Body.Len() != 0 {
		t.Errorf("expected empty body for a HEAD request, got %d bytes", w.Body.Len())
	}
}

func TestReadinessCheckReadyWithOpenStore(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody)
	w := httptest.NewRecorder()
	env.h.ReadinessCheck(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}
