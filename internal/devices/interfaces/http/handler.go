package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenhouse-cloud/internal/audit"
	"greenhouse-cloud/internal/auth"
	devicesapp "greenhouse-cloud/internal/devices/application"
	devices "greenhouse-cloud/internal/devices/domain"
)

// Handler provides the owner-facing device registry endpoints.
type Handler struct {
	service     *devicesapp.Service
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *devicesapp.Service, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("devices handler: nil service")
	}
	return &Handler{service: service, auditLogger: auditLogger}, nil
}

// ServeHTTP routes /api/v1/devices requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/api/v1/devices" {
		switch r.Method {
		case http.MethodGet:
			h.handleList(w, r, userID)
		case http.MethodPost:
			h.handleRegister(w, r, userID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPatch:
		h.handleUpdate(w, r, userID, deviceID)
	case http.MethodDelete:
		h.handleDelete(w, r, userID, deviceID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, userID int64) {
	list, err := h.service.List(r.Context(), userID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	payload := make([]deviceSummary, 0, len(list))
	for _, device := range list {
		payload = append(payload, toSummary(device))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"devices": payload})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, userID int64) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req devicesapp.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	device, err := h.service.Register(r.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, devices.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, devices.ErrAlreadyRegistered):
			http.Error(w, "device already registered", http.StatusConflict)
		default:
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Device registered",
		"device": map[string]any{
			"id":        device.ID,
			"device_id": device.DeviceID,
			"name":      device.Name,
			"location":  device.Location,
			"api_token": device.APIToken,
		},
	})

	h.logAudit(r, userID, "device.register", device.DeviceID)
}

type updateRequest struct {
	Name     *string `json:"name"`
	Location *string `json:"location"`
	Active   *bool   `json:"active"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, userID int64, deviceID string) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	fields := devices.UpdateFields{Name: req.Name, Location: req.Location, Active: req.Active}
	if err := h.service.Update(r.Context(), userID, deviceID, fields); err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "Device updated"})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, userID int64, deviceID string) {
	if err := h.service.Delete(r.Context(), userID, deviceID); err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "Device deleted"})

	h.logAudit(r, userID, "device.delete", deviceID)
}

func (h *Handler) logAudit(r *http.Request, userID int64, action, deviceID string) {
	if h.auditLogger == nil {
		return
	}
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        strconv.FormatInt(userID, 10),
		Action:       action,
		ResourceType: "device",
		ResourceID:   deviceID,
		DeviceID:     deviceID,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

type deviceSummary struct {
	ID        int64      `json:"id"`
	DeviceID  string     `json:"device_id"`
	Name      string     `json:"name"`
	Location  string     `json:"location,omitempty"`
	Active    bool       `json:"active"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func toSummary(device devices.Device) deviceSummary {
	summary := deviceSummary{
		ID:        device.ID,
		DeviceID:  device.DeviceID,
		Name:      device.Name,
		Location:  device.Location,
		Active:    device.Active,
		CreatedAt: device.CreatedAt,
	}
	if !device.LastSeen.IsZero() {
		lastSeen := device.LastSeen
		summary.LastSeen = &lastSeen
	}
	return summary
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, devices.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, devices.ErrNotFound):
		http.Error(w, "device not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
