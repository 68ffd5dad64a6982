package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/middleware"
	"github.com/ernyzasxash/clientt/internal/services"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockLicenseService struct {
	mock.Mock
}

func (m *mockLicenseService) Check(ctx context.Context, req services.ClientRequest) (domain.CheckResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.CheckResponse), args.Error(1)
}

func (m *mockLicenseService) Heartbeat(ctx context.Context, req services.ClientRequest) (domain.CheckResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.CheckResponse), args.Error(1)
}

type mockAdminService struct {
	mock.Mock
}

func (m *mockAdminService) AddKey(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockAdminService) RemoveKey(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *mockAdminService) ListKeys(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockAdminService) Ban(ctx context.Context, req v1.BanRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockAdminService) Unban(ctx context.Context, banType domain.BanType, value string) (string, error) {
	args := m.Called(ctx, banType, value)
	return args.String(0), args.Error(1)
}

func (m *mockAdminService) Bans(ctx context.Context) ([]domain.Ban, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Ban), args.Error(1)
}

func (m *mockAdminService) Connections(ctx context.Context) ([]v1.ConnectionView, error) {
	args := m.Called(ctx)
	return args.Get(0).([]v1.ConnectionView), args.Error(1)
}

func (m *mockAdminService) FailedLogins(ctx context.Context) ([]domain.FailedLogin, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.FailedLogin), args.Error(1)
}

func (m *mockAdminService) Attempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]domain.Attempt), args.Error(1)
}

func licenseRouter(svc LicenseService) chi.Router {
	logger := discardLogger()
	validator := middleware.NewValidationMiddleware(logger, apperrors.NewErrorHandler(logger, false))
	r := chi.NewRouter()
	NewLicenseHandler(svc, validator, logger).Routes(r)
	return r
}

func adminRouter(svc AdminService) chi.Router {
	logger := discardLogger()
	errs := apperrors.NewErrorHandler(logger, false)
	r := chi.NewRouter()
	NewAdminHandler(svc, middleware.NewValidationMiddleware(logger, errs), errs, nil, logger).Routes(r)
	return r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.RemoteAddr = "203.0.113.9:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCheckKeySources(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		target  string
		header  string
		body    string
		wantKey string
	}{
		{"query", http.MethodGet, "/check?key=QUERY", "", "", "QUERY"},
		{"header", http.MethodGet, "/check", "HEADER", "", "HEADER"},
		{"body", http.MethodPost, "/check", "", `{"key":"BODY"}`, "BODY"},
		{"query wins over body", http.MethodPost, "/check?key=QUERY", "", `{"key":"BODY"}`, "QUERY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockLicenseService)
			svc.On("Check", mock.Anything, mock.MatchedBy(func(req services.ClientRequest) bool {
				return req.Key == tt.wantKey && req.IP == "203.0.113.9"
			})).Return(domain.CheckResponse{Result: domain.ResultSuccess}, nil).Once()

			var reader io.Reader
			if tt.body != "" {
				reader = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.target, reader)
			req.RemoteAddr = "203.0.113.9:40000"
			if tt.header != "" {
				req.Header.Set(LicenseKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			licenseRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, domain.ResultSuccess, decodeBody(t, rec)["result"])
			svc.AssertExpectations(t)
		})
	}
}

func TestCheckPassesDeviceFields(t *testing.T) {
	svc := new(mockLicenseService)
	svc.On("Check", mock.Anything, mock.MatchedBy(func(req services.ClientRequest) bool {
		return req.DeviceName == "Pixel 8" &&
			req.DeviceInfo.Model == "Pixel 8" &&
			req.CodeHash == "1234567"
	})).Return(domain.CheckResponse{Result: domain.ResultWrong}, nil)

	body := `{"key":"K","device_name":"Pixel 8","device_info":"{\"model\":\"Pixel 8\"}","code_hash":"1234567"}`
	rec := serve(licenseRouter(svc), http.MethodPost, "/check", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ResultWrong, decodeBody(t, rec)["result"])
	svc.AssertExpectations(t)
}

func TestCheckRejectsMissingKey(t *testing.T) {
	svc := new(mockLicenseService)
	rec := serve(licenseRouter(svc), http.MethodPost, "/check", `{"device_name":"x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, domain.ResultError, body["result"])
	assert.Equal(t, MsgNoKey, body["message"])
	svc.AssertNotCalled(t, "Check", mock.Anything, mock.Anything)
}

func TestCheckRejectsInvalidInput(t *testing.T) {
	svc := new(mockLicenseService)
	rec := serve(licenseRouter(svc), http.MethodPost, "/check", `{"key":"K","code_hash":"abc"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "code_hash must be numeric", decodeBody(t, rec)["message"])
}

func TestCheckServiceFailures(t *testing.T) {
	svc := new(mockLicenseService)
	svc.On("Check", mock.Anything, mock.Anything).
		Return(domain.CheckResponse{}, apperrors.NewStorageError("disk full", nil)).Once()
	rec := serve(licenseRouter(svc), http.MethodGet, "/check?key=K", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, MsgInternal, decodeBody(t, rec)["message"])

	svc.On("Check", mock.Anything, mock.Anything).
		Return(domain.CheckResponse{}, apperrors.NewAppValidationError("license key is empty", nil)).Once()
	rec = serve(licenseRouter(svc), http.MethodGet, "/check?key=K", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "license key is empty", decodeBody(t, rec)["message"])
}

func TestHeartbeat(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     string
		wantStatus int
		wantResult string
	}{
		{"ok", `{"key":"K"}`, domain.ResultOK, http.StatusOK, domain.ResultOK},
		{"unauthorized", `{"key":"K"}`, domain.ResultUnauthorized, http.StatusForbidden, domain.ResultUnauthorized},
		{"banned", `{"key":"K"}`, domain.ResultBanned, http.StatusForbidden, domain.ResultBanned},
		{"invalid json", `{"key":`, "", http.StatusBadRequest, domain.ResultError},
		{"no key", `{}`, "", http.StatusBadRequest, domain.ResultError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mockLicenseService)
			if tt.result != "" {
				svc.On("Heartbeat", mock.Anything, mock.Anything).
					Return(domain.CheckResponse{Result: tt.result}, nil)
			}

			rec := serve(licenseRouter(svc), http.MethodPost, "/heartbeat", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantResult, decodeBody(t, rec)["result"])
			svc.AssertExpectations(t)
		})
	}
}

func TestAdminKeyMutations(t *testing.T) {
	svc := new(mockAdminService)
	svc.On("AddKey", mock.Anything, "NEW-KEY").Return(domain.ResultAdded, nil)
	svc.On("RemoveKey", mock.Anything, "OLD-KEY").Return(domain.ResultNotFound, nil)
	r := adminRouter(svc)

	rec := serve(r, http.MethodPost, "/add", `{"key":"NEW-KEY"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ResultAdded, decodeBody(t, rec)["result"])

	rec = serve(r, http.MethodPost, "/remove", `{"key":"OLD-KEY"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ResultNotFound, decodeBody(t, rec)["result"])

	rec = serve(r, http.MethodPost, "/add", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperrors.TypeValidation, decodeBody(t, rec)["type"])

	rec = serve(r, http.MethodPost, "/add", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestAdminReadOnlyBackend(t *testing.T) {
	svc := new(mockAdminService)
	svc.On("AddKey", mock.Anything, "K").Return("", apperrors.ErrReadOnlyBackend)

	rec := serve(adminRouter(svc), http.MethodPost, "/add", `{"key":"K"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.TypeReadOnlyBackend, decodeBody(t, rec)["type"])
}

func TestAdminBans(t *testing.T) {
	svc := new(mockAdminService)
	req := v1.BanRequest{Type: domain.BanIP, Value: "198.51.100.7", Reason: "abuse"}
	svc.On("Ban", mock.Anything, req).Return(domain.ResultAdded, nil)
	svc.On("Unban", mock.Anything, domain.BanIP, "198.51.100.7").Return(domain.ResultRemoved, nil)
	svc.On("Bans", mock.Anything).Return([]domain.Ban{{Type: domain.BanIP, Value: "198.51.100.7"}}, nil)
	r := adminRouter(svc)

	rec := serve(r, http.MethodPost, "/ban", `{"type":"ip","value":"198.51.100.7","reason":"abuse"}`)
	assert.Equal(t, domain.ResultAdded, decodeBody(t, rec)["result"])

	rec = serve(r, http.MethodGet, "/bans", "")
	body := decodeBody(t, rec)
	assert.Equal(t, domain.ResultOK, body["result"])
	assert.Len(t, body["bans"], 1)

	rec = serve(r, http.MethodPost, "/unban", `{"type":"ip","value":"198.51.100.7"}`)
	assert.Equal(t, domain.ResultRemoved, decodeBody(t, rec)["result"])

	rec = serve(r, http.MethodPost, "/ban", `{"type":"planet","value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestAdminListings(t *testing.T) {
	svc := new(mockAdminService)
	svc.On("ListKeys", mock.Anything).Return([]string{"A", "B"}, nil)
	svc.On("Connections", mock.Anything).Return([]v1.ConnectionView{{Connection: domain.Connection{Key: "A", Active: true}}}, nil)
	svc.On("FailedLogins", mock.Anything).Return([]domain.FailedLogin{}, nil)
	svc.On("Attempts", mock.Anything, DefaultAttemptsLimit).Return([]domain.Attempt{}, nil)
	svc.On("Attempts", mock.Anything, 5).Return([]domain.Attempt{{Key: "A"}}, nil)
	r := adminRouter(svc)

	body := decodeBody(t, serve(r, http.MethodGet, "/list", ""))
	assert.Equal(t, []interface{}{"A", "B"}, body["keys"])

	body = decodeBody(t, serve(r, http.MethodGet, "/connections", ""))
	assert.Equal(t, domain.ResultOK, body["result"])
	assert.Len(t, body["connections"], 1)

	body = decodeBody(t, serve(r, http.MethodGet, "/failed-logins", ""))
	assert.Equal(t, domain.ResultOK, body["result"])

	body = decodeBody(t, serve(r, http.MethodGet, "/attempts", ""))
	assert.Equal(t, domain.ResultOK, body["result"])

	body = decodeBody(t, serve(r, http.MethodGet, "/attempts?limit=5", ""))
	assert.Len(t, body["attempts"], 1)

	rec := serve(r, http.MethodGet, "/attempts?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.AssertExpectations(t)
}

func TestAdminStorageFailure(t *testing.T) {
	svc := new(mockAdminService)
	svc.On("ListKeys", mock.Anything).Return([]string(nil), apperrors.NewStorageError("read failed", errors.New("eio")))

	rec := serve(adminRouter(svc), http.MethodGet, "/list", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.TypeInternal, decodeBody(t, rec)["type"])
}
