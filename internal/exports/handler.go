package exports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"greenhouse-cloud/internal/auth"
	devices "greenhouse-cloud/internal/devices/domain"
	telemetry "greenhouse-cloud/internal/telemetry/domain"
)

// OwnerChecker verifies that a user owns a device.
type OwnerChecker interface {
	EnsureOwner(ctx context.Context, userID int64, deviceID string) error
}

const (
	defaultWindowHours = 24
	exportLimit        = 10000
)

// Handler serves telemetry report downloads for device owners.
type Handler struct {
	query  telemetry.Query
	owners OwnerChecker
	now    func() time.Time
}

// NewHandler constructs a handler.
func NewHandler(query telemetry.Query, owners OwnerChecker) (*Handler, error) {
	if query == nil {
		return nil, errors.New("exports handler: nil query")
	}
	if owners == nil {
		return nil, errors.New("exports handler: nil owner checker")
	}
	return &Handler{query: query, owners: owners, now: time.Now}, nil
}

// ServeHTTP serves GET /api/v1/exports/telemetry.{csv,xlsx,pdf}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	if userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	format := strings.TrimPrefix(r.URL.Path, "/api/v1/exports/telemetry.")
	switch format {
	case "csv", "xlsx", "pdf":
	default:
		http.NotFound(w, r)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		http.Error(w, "device_id required", http.StatusBadRequest)
		return
	}
	hours := defaultWindowHours
	if hoursValue := r.URL.Query().Get("hours"); hoursValue != "" {
		parsed, err := strconv.Atoi(hoursValue)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid hours", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	if err := h.owners.EnsureOwner(r.Context(), userID, deviceID); err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	now := h.now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)
	readings, err := h.query.History(r.Context(), deviceID, since, r.URL.Query().Get("sensor_type"), exportLimit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	report := Report{
		DeviceID:    deviceID,
		From:        since,
		To:          now,
		GeneratedAt: now,
		Readings:    readings,
	}

	var payload []byte
	var contentType string
	switch format {
	case "csv":
		payload, err = BuildCSV(report)
		contentType = "text/csv"
	case "xlsx":
		payload, err = BuildXLSX(report)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildPDF(report)
		contentType = "application/pdf"
	}
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("telemetry_%s_%s.%s", deviceID, now.Format("20060102T150405Z"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(payload)
}
