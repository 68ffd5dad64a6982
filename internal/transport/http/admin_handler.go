package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/middleware"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// DefaultAttemptsLimit is used when /admin/attempts has no limit parameter
const DefaultAttemptsLimit = 100

// AdminHandler serves the admin API
type AdminHandler struct {
	service   AdminService
	validator *middleware.ValidationMiddleware
	errors    *apperrors.ErrorHandler
	feed      http.Handler
	logger    *slog.Logger
}

// NewAdminHandler creates the admin handler. feed serves /admin/ws and may
// be nil.
func NewAdminHandler(service AdminService, validator *middleware.ValidationMiddleware, errorHandler *apperrors.ErrorHandler, feed http.Handler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service:   service,
		validator: validator,
		errors:    errorHandler,
		feed:      feed,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

// Routes mounts the admin endpoints on r. Authentication is applied by
// the caller.
func (h *AdminHandler) Routes(r chi.Router) {
	r.Post("/add", h.AddKey)
	r.Post("/remove", h.RemoveKey)
	r.Get("/list", h.ListKeys)
	r.Post("/ban", h.Ban)
	r.Post("/unban", h.Unban)
	r.Get("/bans", h.Bans)
	r.Get("/connections", h.Connections)
	r.Get("/failed-logins", h.FailedLogins)
	r.Get("/attempts", h.Attempts)
	if h.feed != nil {
		r.Handle("/ws", h.feed)
	}
}

// AddKey handles POST /admin/add
func (h *AdminHandler) AddKey(w http.ResponseWriter, r *http.Request) {
	var req v1.KeyRequest
	if !h.bind(w, r, &req) {
		return
	}
	result, err := h.service.AddKey(r.Context(), req.Key)
	h.result(w, r, result, err)
}

// RemoveKey handles POST /admin/remove
func (h *AdminHandler) RemoveKey(w http.ResponseWriter, r *http.Request) {
	var req v1.KeyRequest
	if !h.bind(w, r, &req) {
		return
	}
	result, err := h.service.RemoveKey(r.Context(), req.Key)
	h.result(w, r, result, err)
}

// ListKeys handles GET /admin/list
func (h *AdminHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListKeys(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.KeysResponse{Result: domain.ResultOK, Keys: keys})
}

// Ban handles POST /admin/ban
func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	var req v1.BanRequest
	if !h.bind(w, r, &req) {
		return
	}
	result, err := h.service.Ban(r.Context(), req)
	h.result(w, r, result, err)
}

// Unban handles POST /admin/unban
func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	var req v1.BanRequest
	if !h.bind(w, r, &req) {
		return
	}
	result, err := h.service.Unban(r.Context(), req.Type, req.Value)
	h.result(w, r, result, err)
}

// Bans handles GET /admin/bans
func (h *AdminHandler) Bans(w http.ResponseWriter, r *http.Request) {
	bans, err := h.service.Bans(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.BansResponse{Result: domain.ResultOK, Bans: bans})
}

// Connections handles GET /admin/connections
func (h *AdminHandler) Connections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.service.Connections(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.ConnectionsResponse{Result: domain.ResultOK, Connections: conns})
}

// FailedLogins handles GET /admin/failed-logins
func (h *AdminHandler) FailedLogins(w http.ResponseWriter, r *http.Request) {
	failed, err := h.service.FailedLogins(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.FailedLoginsResponse{Result: domain.ResultOK, FailedLogins: failed})
}

// Attempts handles GET /admin/attempts?limit=N
func (h *AdminHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	limit := DefaultAttemptsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.errors.HandleError(w, r, apperrors.NewAppValidationError("limit must be a non-negative integer", err))
			return
		}
		limit = n
	}

	attempts, err := h.service.Attempts(r.Context(), limit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.AttemptsResponse{Result: domain.ResultOK, Attempts: attempts})
}

// bind decodes and validates the JSON body into v
func (h *AdminHandler) bind(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decodePayload(r, v); err != nil {
		h.errors.HandleError(w, r, apperrors.InvalidRequestWithError(err))
		return false
	}
	if err := h.validator.ValidateStruct(v); err != nil {
		h.errors.HandleError(w, r, err)
		return false
	}
	return true
}

func (h *AdminHandler) result(w http.ResponseWriter, r *http.Request, result string, err error) {
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, v1.ResultResponse{Result: result})
}
