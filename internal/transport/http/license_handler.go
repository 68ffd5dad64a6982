package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/middleware"
	"github.com/ernyzasxash/clientt/internal/services"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// LicenseKeyHeader may carry the key on /check
const LicenseKeyHeader = "X-License-Key"

// Messages of the {"result":"error"} responses
const (
	MsgNoKey        = "no key provided"
	MsgInvalidJSON  = "invalid json"
	MsgInternal     = "internal error"
	MsgInvalidInput = "invalid request"
)

// clientPayload is the JSON body of /check and /heartbeat. device_info is
// kept raw because older launchers send it as an encoded string.
type clientPayload struct {
	Key        string          `json:"key" validate:"max=256,licensekey"`
	DeviceName string          `json:"device_name" validate:"max=256"`
	DeviceInfo json.RawMessage `json:"device_info"`
	CodeHash   string          `json:"code_hash" validate:"omitempty,max=32,numeric"`
	Timestamp  int64           `json:"timestamp"`
}

// LicenseHandler serves the launcher protocol
type LicenseHandler struct {
	service   LicenseService
	validator *middleware.ValidationMiddleware
	logger    *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service LicenseService, validator *middleware.ValidationMiddleware, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:   service,
		validator: validator,
		logger:    logger.With(slog.String("handler", "license")),
	}
}

// Routes mounts /check and /heartbeat
func (h *LicenseHandler) Routes(r chi.Router) {
	h.CheckRoutes(r)
	h.HeartbeatRoutes(r)
}

// CheckRoutes mounts GET and POST /check
func (h *LicenseHandler) CheckRoutes(r chi.Router) {
	r.Get("/check", h.Check)
	r.Post("/check", h.Check)
}

// HeartbeatRoutes mounts POST /heartbeat
func (h *LicenseHandler) HeartbeatRoutes(r chi.Router) {
	r.Post("/heartbeat", h.Heartbeat)
}

// Check handles GET|POST /check
func (h *LicenseHandler) Check(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if r.Method == http.MethodPost {
		if err := decodePayload(r, &payload); err != nil {
			h.logger.DebugContext(r.Context(), "ignoring undecodable check body",
				slog.String("error", err.Error()))
		}
	}

	key := firstNonEmpty(r.URL.Query().Get("key"), r.Header.Get(LicenseKeyHeader), payload.Key)
	if strings.TrimSpace(key) == "" {
		h.respond(w, r, http.StatusBadRequest, domain.CheckResponse{Result: domain.ResultError, Message: MsgNoKey})
		return
	}
	payload.Key = key
	if payload.DeviceName == "" {
		payload.DeviceName = r.URL.Query().Get("device_name")
	}

	req, ok := h.clientRequest(w, r, payload)
	if !ok {
		return
	}

	resp, err := h.service.Check(r.Context(), req)
	if err != nil {
		h.fail(w, r, "check", err)
		return
	}
	h.respond(w, r, http.StatusOK, resp)
}

// Heartbeat handles POST /heartbeat. Rejected heartbeats answer 403 so the
// launcher can tell them apart from transport failures.
func (h *LicenseHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var payload clientPayload
	if err := decodePayload(r, &payload); err != nil {
		h.respond(w, r, http.StatusBadRequest, domain.CheckResponse{Result: domain.ResultError, Message: MsgInvalidJSON})
		return
	}
	if strings.TrimSpace(payload.Key) == "" {
		h.respond(w, r, http.StatusBadRequest, domain.CheckResponse{Result: domain.ResultError, Message: MsgNoKey})
		return
	}

	req, ok := h.clientRequest(w, r, payload)
	if !ok {
		return
	}

	resp, err := h.service.Heartbeat(r.Context(), req)
	if err != nil {
		h.fail(w, r, "heartbeat", err)
		return
	}

	status := http.StatusOK
	if resp.Result != domain.ResultOK {
		status = http.StatusForbidden
	}
	h.respond(w, r, status, resp)
}

// clientRequest validates payload and builds the service request. On
// failure the response has been written.
func (h *LicenseHandler) clientRequest(w http.ResponseWriter, r *http.Request, payload clientPayload) (services.ClientRequest, bool) {
	if err := h.validator.ValidateStruct(payload); err != nil {
		msg := MsgInvalidInput
		var apiErr *apperrors.APIError
		if errors.As(err, &apiErr) {
			if details, ok := apiErr.Details.([]apperrors.ValidationError); ok && len(details) > 0 {
				msg = details[0].Message
			}
		}
		h.respond(w, r, http.StatusBadRequest, domain.CheckResponse{Result: domain.ResultError, Message: msg})
		return services.ClientRequest{}, false
	}

	info, err := domain.UnmarshalDeviceInfo(payload.DeviceInfo)
	if err != nil {
		h.logger.DebugContext(r.Context(), "ignoring malformed device_info",
			slog.String("error", err.Error()))
	}

	return services.ClientRequest{
		Key:        payload.Key,
		IP:         middleware.ClientIP(r),
		DeviceName: payload.DeviceName,
		DeviceInfo: info,
		CodeHash:   payload.CodeHash,
	}, true
}

func (h *LicenseHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrTypeValidation {
		h.respond(w, r, http.StatusBadRequest, domain.CheckResponse{Result: domain.ResultError, Message: appErr.Message})
		return
	}
	h.logger.ErrorContext(r.Context(), "license request failed",
		slog.String("action", action),
		slog.String("error", err.Error()))
	h.respond(w, r, http.StatusInternalServerError, domain.CheckResponse{Result: domain.ResultError, Message: MsgInternal})
}

func (h *LicenseHandler) respond(w http.ResponseWriter, r *http.Request, status int, resp domain.CheckResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}

func decodePayload(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return io.EOF
	}
	return render.DecodeJSON(r.Body, v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
