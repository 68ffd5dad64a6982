package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/middleware"
	"github.com/ernyzasxash/clientt/internal/services"
	"github.com/ernyzasxash/clientt/internal/storage"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

const testAdminToken = "router-test-token"

type RouterTestSuite struct {
	suite.Suite
	router http.Handler
	store  *storage.FileStore
	ready  error
}

func (suite *RouterTestSuite) SetupTest() {
	logger := discardLogger()

	store, err := storage.NewFileStore(filepath.Join(suite.T().TempDir(), "data"), storage.FileStoreOptions{
		MaxEntries: 50,
		Logger:     logger,
	})
	require.NoError(suite.T(), err)
	suite.store = store
	suite.ready = nil

	license, err := services.NewLicenseService(services.LicenseOptions{
		Keys: store, Bans: store, Activity: store, Logger: logger,
	})
	require.NoError(suite.T(), err)
	admin, err := services.NewAdminService(services.AdminOptions{
		Keys: store, Bans: store, Activity: store, Logger: logger,
	})
	require.NoError(suite.T(), err)
	health := services.NewHealthService(map[string]services.Probe{
		"storage": func(context.Context) error { return suite.ready },
	}, nil, logger)

	cfg := config.Default()
	cfg.Security.AdminToken = testAdminToken
	cfg.Security.RateLimit.Enabled = false

	suite.router, err = NewRouter(RouterDeps{
		Config:  cfg,
		License: license,
		Admin:   admin,
		Health:  health,
		Logger:  logger,
	})
	require.NoError(suite.T(), err)
}

func (suite *RouterTestSuite) do(method, target, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "192.0.2.10:50000"
	if admin {
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	}
	rec := httptest.NewRecorder()
	suite.router.ServeHTTP(rec, req)
	return rec
}

func (suite *RouterTestSuite) TestLicenseLifecycle() {
	t := suite.T()

	rec := suite.do(http.MethodGet, "/check?key=abcd-1234", "", false)
	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal(domain.ResultWrong, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/admin/add", `{"key":"ABCD-1234"}`, true)
	suite.Equal(domain.ResultAdded, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/check", `{"key":"ABCD-1234","device_name":"Pixel 8"}`, false)
	suite.Equal(domain.ResultSuccess, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/heartbeat", `{"key":"ABCD-1234","device_name":"Pixel 8"}`, false)
	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal(domain.ResultOK, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodGet, "/admin/connections", "", true)
	body := decodeBody(t, rec)
	suite.Equal(domain.ResultOK, body["result"])
	conns := body["connections"].([]interface{})
	suite.Require().Len(conns, 1)
	conn := conns[0].(map[string]interface{})
	suite.Equal("192.0.2.10", conn["ip"])
	suite.Equal(true, conn["active"])

	rec = suite.do(http.MethodPost, "/admin/ban", `{"type":"device","value":"Pixel 8","reason":"shared"}`, true)
	suite.Equal(domain.ResultAdded, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/heartbeat", `{"key":"ABCD-1234","device_name":"Pixel 8"}`, false)
	suite.Equal(http.StatusForbidden, rec.Code)
	suite.Equal(domain.ResultBanned, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/admin/unban", `{"type":"device","value":"Pixel 8"}`, true)
	suite.Equal(domain.ResultRemoved, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/admin/remove", `{"key":"ABCD-1234"}`, true)
	suite.Equal(domain.ResultRemoved, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodPost, "/heartbeat", `{"key":"ABCD-1234"}`, false)
	suite.Equal(http.StatusForbidden, rec.Code)
	suite.Equal(domain.ResultUnauthorized, decodeBody(t, rec)["result"])

	rec = suite.do(http.MethodGet, "/admin/attempts?limit=10", "", true)
	suite.Len(decodeBody(t, rec)["attempts"], 2)

	rec = suite.do(http.MethodGet, "/admin/failed-logins", "", true)
	suite.Len(decodeBody(t, rec)["failed_logins"], 1)
}

func (suite *RouterTestSuite) TestAdminRequiresToken() {
	rec := suite.do(http.MethodGet, "/admin/list", "", false)
	suite.Equal(http.StatusForbidden, rec.Code)
	suite.Equal(apperrors.TypeForbidden, decodeBody(suite.T(), rec)["type"])

	rec = suite.do(http.MethodGet, "/admin/list", "", true)
	suite.Equal(http.StatusOK, rec.Code)
	suite.Equal([]interface{}{}, decodeBody(suite.T(), rec)["keys"])
}

func (suite *RouterTestSuite) TestHealthEndpoints() {
	rec := suite.do(http.MethodGet, "/health/ready", "", false)
	suite.Equal(http.StatusOK, rec.Code)

	suite.ready = errors.New("disk unavailable")
	rec = suite.do(http.MethodGet, "/health/ready", "", false)
	suite.Equal(http.StatusServiceUnavailable, rec.Code)
	suite.Equal("not_ready", decodeBody(suite.T(), rec)["status"])

	rec = suite.do(http.MethodGet, "/health/live", "", false)
	suite.Equal(http.StatusOK, rec.Code)

	rec = suite.do(http.MethodGet, "/version", "", false)
	suite.Equal(http.StatusOK, rec.Code)
	suite.Contains(decodeBody(suite.T(), rec), "version")
}

func (suite *RouterTestSuite) TestUnknownRoute() {
	rec := suite.do(http.MethodGet, "/nope", "", false)
	suite.Equal(http.StatusNotFound, rec.Code)
	suite.NotEmpty(rec.Header().Get(middleware.RequestIDHeader))

	rec = suite.do(http.MethodDelete, "/check", "", false)
	suite.Equal(http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}

func TestRouterRateLimitsPublicEndpoints(t *testing.T) {
	logger := discardLogger()
	store, err := storage.NewFileStore(t.TempDir(), storage.FileStoreOptions{Logger: logger})
	require.NoError(t, err)
	license, err := services.NewLicenseService(services.LicenseOptions{Keys: store, Bans: store, Activity: store, Logger: logger})
	require.NoError(t, err)
	admin, err := services.NewAdminService(services.AdminOptions{Keys: store, Bans: store, Activity: store, Logger: logger})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Security.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}

	router, err := NewRouter(RouterDeps{Config: cfg, License: license, Admin: admin, Logger: logger})
	require.NoError(t, err)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/check?key=X", nil)
		req.RemoteAddr = "192.0.2.77:1234"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, call())
	require.Eventually(t, func() bool { return call() == http.StatusTooManyRequests }, time.Second, 10*time.Millisecond)
}

func TestRouterDoesNotThrottleSharedAddressHeartbeats(t *testing.T) {
	logger := discardLogger()
	store, err := storage.NewFileStore(t.TempDir(), storage.FileStoreOptions{Logger: logger})
	require.NoError(t, err)
	license, err := services.NewLicenseService(services.LicenseOptions{Keys: store, Bans: store, Activity: store, Logger: logger})
	require.NoError(t, err)
	admin, err := services.NewAdminService(services.AdminOptions{Keys: store, Bans: store, Activity: store, Logger: logger})
	require.NoError(t, err)

	const players = 8
	for i := 0; i < players; i++ {
		_, err := store.AddKey(context.Background(), fmt.Sprintf("NAT-PLAYER-%02d", i))
		require.NoError(t, err)
	}

	// default limits: 5 rps, burst 20
	router, err := NewRouter(RouterDeps{Config: config.Default(), License: license, Admin: admin, Logger: logger})
	require.NoError(t, err)

	beat := func(player int) int {
		body := fmt.Sprintf(`{"key":"NAT-PLAYER-%02d","device_name":"pc-%d"}`, player, player)
		req := httptest.NewRequest(http.MethodPost, "/heartbeat", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = fmt.Sprintf("192.0.2.10:%d", 40000+player)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	// ten heartbeat rounds sent back to back, denser than the 1s interval
	for round := 0; round < 10; round++ {
		for p := 0; p < players; p++ {
			require.Equal(t, http.StatusOK, beat(p), "round %d player %d", round, p)
		}
	}
}
