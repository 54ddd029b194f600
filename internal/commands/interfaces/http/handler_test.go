package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"greenhouse-cloud/internal/auth"
	commandsapp "greenhouse-cloud/internal/commands/application"
	commandsmem "greenhouse-cloud/internal/commands/infrastructure/memory"
	commandshttp "greenhouse-cloud/internal/commands/interfaces/http"
	"greenhouse-cloud/internal/config"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devicesmem "greenhouse-cloud/internal/devices/infrastructure/memory"
)

type fixture struct {
	handler       *commandshttp.Handler
	deviceService *devicesapp.Service
	deviceRepo    *devicesmem.DeviceRepository
}

func newFixture(t *testing.T, requireToken bool) fixture {
	t.Helper()
	deviceRepo := devicesmem.NewDeviceRepository()
	deviceService, err := devicesapp.NewService(deviceRepo)
	if err != nil {
		t.Fatalf("device service: %v", err)
	}
	service, err := commandsapp.NewService(commandsmem.NewCommandRepository(), deviceService, config.CompletionModeLegacy)
	if err != nil {
		t.Fatalf("command service: %v", err)
	}
	verifier := auth.NewDeviceVerifier(deviceRepo, requireToken)
	handler, err := commandshttp.NewHandler(service, verifier, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return fixture{handler: handler, deviceService: deviceService, deviceRepo: deviceRepo}
}

func (f fixture) register(t *testing.T, userID int64, deviceID string) string {
	t.Helper()
	device, err := f.deviceService.Register(context.Background(), userID, devicesapp.RegisterRequest{
		DeviceID: deviceID,
		Name:     "greenhouse-" + deviceID,
	})
	if err != nil {
		t.Fatalf("register device: %v", err)
	}
	return device.APIToken
}

func asUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(auth.WithUser(r.Context(), userID, "owner@example.com"))
}

func TestHandler_EnqueueAndPoll(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, 1, "gh-001")

	body := `{"device_id":"gh-001","command_type":"set_fan_speed","parameters":{"speed":2}}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)), 1)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Message   string `json:"message"`
		CommandID int64  `json:"command_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.CommandID <= 0 {
		t.Fatalf("expected command id, got %d", created.CommandID)
	}

	pollReq := httptest.NewRequest(http.MethodGet, "/api/v1/commands/pending?device_id=gh-001", nil)
	pollRec := httptest.NewRecorder()
	f.handler.ServeHTTP(pollRec, pollReq)
	if pollRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", pollRec.Code, pollRec.Body.String())
	}
	var polled struct {
		Commands []struct {
			ID          int64           `json:"id"`
			CommandType string          `json:"command_type"`
			Parameters  json.RawMessage `json:"parameters"`
		} `json:"commands"`
	}
	if err := json.Unmarshal(pollRec.Body.Bytes(), &polled); err != nil {
		t.Fatalf("decode poll: %v", err)
	}
	if len(polled.Commands) != 1 {
		t.Fatalf("expected one pending command, got %d", len(polled.Commands))
	}
	if polled.Commands[0].CommandType != "set_fan_speed" {
		t.Fatalf("unexpected command type %s", polled.Commands[0].CommandType)
	}
}

func TestHandler_EnqueueForeignDevice404(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, 1, "gh-001")

	body := `{"device_id":"gh-001","command_type":"reboot"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)), 2)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_EnqueueWithoutUser401(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, 1, "gh-001")

	body := `{"device_id":"gh-001","command_type":"reboot"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandler_Complete(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, 1, "gh-001")

	body := `{"device_id":"gh-001","command_type":"reboot"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)), 1)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var created struct {
		CommandID int64 `json:"command_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	completeBody := `{"device_id":"gh-001","success":true}`
	completeReq := httptest.NewRequest(http.MethodPatch, "/api/v1/commands/1/complete", strings.NewReader(completeBody))
	completeRec := httptest.NewRecorder()
	f.handler.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", completeRec.Code, completeRec.Body.String())
	}

	pollReq := httptest.NewRequest(http.MethodGet, "/api/v1/commands/pending?device_id=gh-001", nil)
	pollRec := httptest.NewRecorder()
	f.handler.ServeHTTP(pollRec, pollReq)
	var polled struct {
		Commands []json.RawMessage `json:"commands"`
	}
	_ = json.Unmarshal(pollRec.Body.Bytes(), &polled)
	if len(polled.Commands) != 0 {
		t.Fatalf("expected no pending commands, got %d", len(polled.Commands))
	}
}

func TestHandler_CompleteForeignDevice404(t *testing.T) {
	f := newFixture(t, false)
	f.register(t, 1, "gh-001")
	f.register(t, 1, "gh-002")

	body := `{"device_id":"gh-001","command_type":"reboot"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/commands", strings.NewReader(body)), 1)
	f.handler.ServeHTTP(httptest.NewRecorder(), req)

	completeBody := `{"device_id":"gh-002","success":true}`
	completeReq := httptest.NewRequest(http.MethodPatch, "/api/v1/commands/1/complete", strings.NewReader(completeBody))
	completeRec := httptest.NewRecorder()
	f.handler.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", completeRec.Code)
	}
}

func TestHandler_InvalidCommandID(t *testing.T) {
	f := newFixture(t, false)

	completeReq := httptest.NewRequest(http.MethodPatch, "/api/v1/commands/abc/complete", strings.NewReader(`{}`))
	completeRec := httptest.NewRecorder()
	f.handler.ServeHTTP(completeRec, completeReq)
	if completeRec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", completeRec.Code)
	}
}

func TestHandler_DeviceTokenEnforced(t *testing.T) {
	f := newFixture(t, true)
	token := f.register(t, 1, "gh-001")

	// Missing token is rejected.
	pollReq := httptest.NewRequest(http.MethodGet, "/api/v1/commands/pending?device_id=gh-001", nil)
	pollRec := httptest.NewRecorder()
	f.handler.ServeHTTP(pollRec, pollReq)
	if pollRec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", pollRec.Code)
	}

	// The minted token is accepted.
	authedReq := httptest.NewRequest(http.MethodGet, "/api/v1/commands/pending?device_id=gh-001", nil)
	authedReq.Header.Set(auth.DeviceTokenHeader, token)
	authedRec := httptest.NewRecorder()
	f.handler.ServeHTTP(authedRec, authedReq)
	if authedRec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authedRec.Code)
	}
}
