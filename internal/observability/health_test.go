package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"MemoLedger/internal/observability"
)

func serve(t *testing.T, h http.HandlerFunc) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestLiveness(t *testing.T) {
	hc := observability.NewHealthChecker()
	code, body := serve(t, hc.LivenessHandler)
	if code != http.StatusOK {
		t.Errorf("code: got %d, want 200", code)
	}
	if body["status"] != "alive" {
		t.Errorf("status: got %v, want alive", body["status"])
	}
}

func TestReadiness(t *testing.T) {
	hc := observability.NewHealthChecker()

	code, _ := serve(t, hc.ReadinessHandler)
	if code != http.StatusServiceUnavailable {
		t.Errorf("before SetReady: got %d, want 503", code)
	}

	hc.SetReady(true)
	code, body := serve(t, hc.ReadinessHandler)
	if code != http.StatusOK || body["status"] != "ready" {
		t.Errorf("after SetReady: got %d %v, want 200 ready", code, body["status"])
	}

	hc.AddCheck("db", func(context.Context) error { return errors.New("connection refused") })
	code, body = serve(t, hc.ReadinessHandler)
	if code != http.StatusServiceUnavailable {
		t.Errorf("failing check: got %d, want 503", code)
	}
	failed, _ := body["failed"].(map[string]interface{})
	if failed["db"] != "connection refused" {
		t.Errorf("failed: got %v", body["failed"])
	}
}
