package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenhouse-cloud/internal/auth"
	telemetryapp "greenhouse-cloud/internal/telemetry/application"
	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// Handler provides telemetry ingest and dashboard read endpoints.
type Handler struct {
	service  *telemetryapp.Service
	verifier *auth.DeviceVerifier
}

// NewHandler constructs a handler.
func NewHandler(service *telemetryapp.Service, verifier *auth.DeviceVerifier) (*Handler, error) {
	if service == nil {
		return nil, errors.New("telemetry handler: nil service")
	}
	if verifier == nil {
		return nil, errors.New("telemetry handler: nil device verifier")
	}
	return &Handler{service: service, verifier: verifier}, nil
}

// HandleIngest accepts a batch of readings from a device.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req telemetryapp.IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.verifier.Verify(r.Context(), req.DeviceID, auth.DeviceToken(r)); err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			http.Error(w, "device identity required", http.StatusUnauthorized)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.service.Ingest(r.Context(), req); err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Telemetry received",
		"count":   len(req.Sensors),
	})
}

// HandleLatest serves GET /api/v1/telemetry/latest/{device_id}.
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/telemetry/latest/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.NotFound(w, r)
		return
	}

	readings, err := h.service.Latest(r.Context(), deviceID)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"device_id": deviceID,
		"sensors":   toPayload(readings),
	})
}

// HandleHistory serves GET /api/v1/telemetry/history/{device_id}.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/telemetry/history/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.NotFound(w, r)
		return
	}

	req := telemetryapp.HistoryRequest{
		DeviceID:   deviceID,
		SensorType: r.URL.Query().Get("sensor_type"),
	}
	if hoursValue := r.URL.Query().Get("hours"); hoursValue != "" {
		hours, err := strconv.Atoi(hoursValue)
		if err != nil || hours <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		req.Hours = hours
	}

	readings, err := h.service.History(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	hours := req.Hours
	if hours <= 0 {
		hours = 24
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"device_id": deviceID,
		"hours":     hours,
		"count":     len(readings),
		"data":      toPayload(readings),
	})
}

type readingPayload struct {
	ID         int64     `json:"id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

func toPayload(readings []telemetry.Reading) []readingPayload {
	payload := make([]readingPayload, 0, len(readings))
	for _, reading := range readings {
		payload = append(payload, readingPayload{
			ID:         reading.ID,
			SensorType: reading.SensorType,
			Value:      reading.Value,
			Unit:       reading.Unit,
			RecordedAt: reading.RecordedAt,
		})
	}
	return payload
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, telemetry.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, telemetry.ErrUnknownDevice):
		http.Error(w, "device not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
