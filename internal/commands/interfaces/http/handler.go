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
	commandsapp "greenhouse-cloud/internal/commands/application"
	commands "greenhouse-cloud/internal/commands/domain"
)

// Handler provides command HTTP endpoints: owner enqueue, device poll and
// device completion report.
type Handler struct {
	service     *commandsapp.Service
	verifier    *auth.DeviceVerifier
	auditLogger audit.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *commandsapp.Service, verifier *auth.DeviceVerifier, auditLogger audit.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("commands handler: nil service")
	}
	if verifier == nil {
		return nil, errors.New("commands handler: nil device verifier")
	}
	return &Handler{service: service, verifier: verifier, auditLogger: auditLogger}, nil
}

// ServeHTTP routes /api/v1/commands requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/commands" && r.Method == http.MethodPost:
		h.handleEnqueue(w, r)
	case path == "/api/v1/commands/pending" && r.Method == http.MethodGet:
		h.handlePoll(w, r)
	case strings.HasPrefix(path, "/api/v1/commands/") && strings.HasSuffix(path, "/complete") && r.Method == http.MethodPatch:
		h.handleComplete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID <= 0 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req commandsapp.EnqueueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	cmd, err := h.service.Enqueue(r.Context(), userID, req)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"message":    "Command queued",
		"command_id": cmd.ID,
	})

	h.logAudit(r, userID, cmd)
}

func (h *Handler) handlePoll(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if err := h.verifier.Verify(r.Context(), deviceID, auth.DeviceToken(r)); err != nil {
		respondDeviceAuthError(w, err)
		return
	}

	list, err := h.service.Poll(r.Context(), deviceID)
	if err != nil {
		respondError(w, err)
		return
	}

	payload := make([]pendingCommand, 0, len(list))
	for _, cmd := range list {
		payload = append(payload, pendingCommand{
			ID:          cmd.ID,
			CommandType: cmd.CommandType,
			Parameters:  cmd.Parameters,
			CreatedAt:   cmd.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"commands": payload})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	idValue := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/commands/"), "/complete")
	id, err := strconv.ParseInt(idValue, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid command id", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req completeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := h.verifier.Verify(r.Context(), req.DeviceID, auth.DeviceToken(r)); err != nil {
		respondDeviceAuthError(w, err)
		return
	}

	if err := h.service.Complete(r.Context(), id, req.DeviceID, req.Success); err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"message": "Command status updated"})
}

func (h *Handler) logAudit(r *http.Request, userID int64, cmd *commands.Command) {
	if h.auditLogger == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"device_id":    cmd.DeviceID,
		"command_type": cmd.CommandType,
	})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        strconv.FormatInt(userID, 10),
		Action:       "command.enqueue",
		ResourceType: "command",
		ResourceID:   strconv.FormatInt(cmd.ID, 10),
		DeviceID:     cmd.DeviceID,
		Metadata:     meta,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

type pendingCommand struct {
	ID          int64           `json:"id"`
	CommandType string          `json:"command_type"`
	Parameters  json.RawMessage `json:"parameters"`
	CreatedAt   time.Time       `json:"created_at"`
}

type completeRequest struct {
	DeviceID string `json:"device_id"`
	Success  bool   `json:"success"`
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, commands.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, commands.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func respondDeviceAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUnauthorized) {
		http.Error(w, "device identity required", http.StatusUnauthorized)
		return
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
