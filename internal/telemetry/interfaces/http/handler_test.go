package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"greenhouse-cloud/internal/auth"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devicesmem "greenhouse-cloud/internal/devices/infrastructure/memory"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
	telemetrymem "greenhouse-cloud/internal/telemetry/infrastructure/memory"
	telemetryhttp "greenhouse-cloud/internal/telemetry/interfaces/http"
)

func newHandler(t *testing.T) *telemetryhttp.Handler {
	t.Helper()
	deviceRepo := devicesmem.NewDeviceRepository()
	deviceService, err := devicesapp.NewService(deviceRepo)
	if err != nil {
		t.Fatalf("device service: %v", err)
	}
	if _, err := deviceService.Register(context.Background(), 1, devicesapp.RegisterRequest{
		DeviceID: "gh-001",
		Name:     "north greenhouse",
	}); err != nil {
		t.Fatalf("register device: %v", err)
	}

	repo := telemetrymem.NewTelemetryRepository()
	service, err := telemetryapp.NewService(repo, repo, deviceRepo)
	if err != nil {
		t.Fatalf("telemetry service: %v", err)
	}
	handler, err := telemetryhttp.NewHandler(service, auth.NewDeviceVerifier(deviceRepo, false))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler
}

func TestIngestThenLatest(t *testing.T) {
	handler := newHandler(t)

	body := `{"device_id":"gh-001","sensors":[
		{"type":"temperature","value":24.5,"unit":"C"},
		{"type":"humidity","value":61,"unit":"%"}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var ingestResp struct {
		Message string `json:"message"`
		Count   int    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ingestResp); err != nil {
		t.Fatalf("decode ingest response: %v", err)
	}
	if ingestResp.Message != "Telemetry received" || ingestResp.Count != 2 {
		t.Fatalf("unexpected ingest response: %+v", ingestResp)
	}

	latestReq := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/latest/gh-001", nil)
	latestRec := httptest.NewRecorder()
	handler.HandleLatest(latestRec, latestReq)
	if latestRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", latestRec.Code, latestRec.Body.String())
	}
	var payload struct {
		DeviceID string `json:"device_id"`
		Sensors  []struct {
			SensorType string  `json:"sensor_type"`
			Value      float64 `json:"value"`
		} `json:"sensors"`
	}
	if err := json.Unmarshal(latestRec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode latest: %v", err)
	}
	if payload.DeviceID != "gh-001" || len(payload.Sensors) != 2 {
		t.Fatalf("unexpected latest payload: %+v", payload)
	}
}

func TestIngest_UnknownDevice404(t *testing.T) {
	handler := newHandler(t)

	body := `{"device_id":"gh-404","sensors":[{"type":"temperature","value":1,"unit":"C"}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestIngest_EmptyBatch400(t *testing.T) {
	handler := newHandler(t)

	body := `{"device_id":"gh-001","sensors":[]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/telemetry", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.HandleIngest(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHistory_InvalidHours400(t *testing.T) {
	handler := newHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/history/gh-001?hours=abc", nil)
	rec := httptest.NewRecorder()
	handler.HandleHistory(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
