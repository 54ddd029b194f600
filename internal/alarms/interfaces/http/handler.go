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

	alarmsapp "greenhouse-cloud/internal/alarms/application"
	alarms "greenhouse-cloud/internal/alarms/domain"
)

// Handler provides the owner-facing alarm rule and alarm listing endpoints.
type Handler struct {
	service *alarmsapp.Service
}

// NewHandler constructs a handler.
func NewHandler(service *alarmsapp.Service) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	return &Handler{service: service}, nil
}

// ServeHTTP routes /api/v1/alarms requests.
//
//	GET    /api/v1/alarms/rules?device_id=...
//	POST   /api/v1/alarms/rules
//	DELETE /api/v1/alarms/rules/{id}?device_id=...
//	GET    /api/v1/alarms?device_id=...
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/api/v1/alarms/rules" && r.Method == http.MethodGet:
		h.handleListRules(w, r, userID)
	case path == "/api/v1/alarms/rules" && r.Method == http.MethodPost:
		h.handleCreateRule(w, r, userID)
	case strings.HasPrefix(path, "/api/v1/alarms/rules/") && r.Method == http.MethodDelete:
		h.handleDeleteRule(w, r, userID)
	case path == "/api/v1/alarms" && r.Method == http.MethodGet:
		h.handleListAlarms(w, r, userID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request, userID int64) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req alarmsapp.RuleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	rule, err := h.service.CreateRule(r.Context(), userID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message": "Rule created",
		"rule":    toRulePayload(*rule),
	})
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request, userID int64) {
	rules, err := h.service.ListRules(r.Context(), userID, r.URL.Query().Get("device_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	payload := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		payload = append(payload, toRulePayload(rule))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"rules": payload})
}

func (h *Handler) handleDeleteRule(w http.ResponseWriter, r *http.Request, userID int64) {
	idValue := strings.TrimPrefix(r.URL.Path, "/api/v1/alarms/rules/")
	ruleID, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil || ruleID <= 0 {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteRule(r.Context(), userID, r.URL.Query().Get("device_id"), ruleID); err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "Rule deleted"})
}

func (h *Handler) handleListAlarms(w http.ResponseWriter, r *http.Request, userID int64) {
	list, err := h.service.ListAlarms(r.Context(), userID, r.URL.Query().Get("device_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	payload := make([]alarmPayload, 0, len(list))
	for _, alarm := range list {
		payload = append(payload, alarmPayload{
			ID:         alarm.ID,
			RuleID:     alarm.RuleID,
			DeviceID:   alarm.DeviceID,
			SensorType: alarm.SensorType,
			Value:      alarm.Value,
			Threshold:  alarm.Threshold,
			Direction:  alarm.Direction,
			RaisedAt:   alarm.RaisedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"alarms": payload})
}

type rulePayload struct {
	ID         int64     `json:"id"`
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Min        *float64  `json:"min,omitempty"`
	Max        *float64  `json:"max,omitempty"`
	Enabled    bool      `json:"enabled"`
	CreatedAt  time.Time `json:"created_at"`
}

func toRulePayload(rule alarms.Rule) rulePayload {
	return rulePayload{
		ID:         rule.ID,
		DeviceID:   rule.DeviceID,
		SensorType: rule.SensorType,
		Min:        rule.Min,
		Max:        rule.Max,
		Enabled:    rule.Enabled,
		CreatedAt:  rule.CreatedAt,
	}
}

type alarmPayload struct {
	ID         int64     `json:"id"`
	RuleID     int64     `json:"rule_id,omitempty"`
	DeviceID   string    `json:"device_id"`
	SensorType string    `json:"sensor_type"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	Direction  string    `json:"direction"`
	RaisedAt   time.Time `json:"raised_at"`
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alarms.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, alarms.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
