package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ingestpipe/internal/alert"
	"ingestpipe/internal/ingest"
	"ingestpipe/internal/model"
	"ingestpipe/internal/processor"
	"ingestpipe/internal/ratelimit"
	"ingestpipe/internal/telemetrystore"
)

func newTestServer() (*Server, telemetrystore.Store, alert.Store) {
	telemetry := telemetrystore.NewMemStore()
	alerts := alert.NewMemStore()
	limiter := ratelimit.New(ratelimit.Config{Enabled: false}, nil)
	registry := processor.NewRegistry(nil, alert.NewEngine(alerts, nil, nil), nil)
	facade := ingest.New(limiter, nil, ingest.FallbackReject, telemetry, registry, nil)
	return NewServer(facade, nil, alerts, telemetry, nil), telemetry, alerts
}

func TestHandleSubmit_AcceptsValidSample(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	body, _ := json.Marshal(submitRequest{
		DeviceID:  "d1",
		Latitude:  40.0,
		Longitude: -74.0,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a synchronously processed sample, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmit_RejectsMalformedJSON(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestHandleSubmit_RejectsBadTimestamp(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	body, _ := json.Marshal(submitRequest{DeviceID: "d1", Timestamp: "not-a-timestamp"})
	req := httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-ISO-8601 timestamp, got %d", rec.Code)
	}
}

func TestHandleSubmit_RejectsWrongMethod(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/telemetry", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /telemetry, got %d", rec.Code)
	}
}

func TestHandleQueueStatus_ReportsDisabledWhenQueueNil(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if got["enabled"] != false {
		t.Fatalf("expected enabled=false with no queue configured, got %+v", got)
	}
}

func TestHandleListAlerts_RequiresDeviceID(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when deviceId is missing, got %d", rec.Code)
	}
}

func TestHandleListAlerts_ReturnsStoredAlerts(t *testing.T) {
	srv, _, alerts := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	a := model.Alert{
		DeviceID:    "d1",
		AlertType:   model.AlertTypeAnomaly,
		Severity:    model.SeverityLow,
		Message:     "Invalid coordinates detected",
		Fingerprint: "test-fingerprint-d1",
	}
	if _, err := alerts.Insert(t.Context(), a); err != nil {
		t.Fatalf("setup insert failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/alerts?deviceId=d1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListTelemetry_RequiresDeviceID(t *testing.T) {
	srv, _, _ := newTestServer()
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/telemetry/history", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when deviceId is missing, got %d", rec.Code)
	}
}
