// Package integration runs the launcher against a real license server.
package integration

import (
	"context"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ernyzasxash/clientt/internal/adminclient"
	"github.com/ernyzasxash/clientt/internal/app"
	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/geoip"
	"github.com/ernyzasxash/clientt/internal/license"
	"github.com/ernyzasxash/clientt/internal/shared/testutil"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

const (
	adminToken = "integration-token"
	playerKey  = "PLAYER-KEY-0001"
	wrongKey   = "WRONG-KEY-0000"
)

type rigDevice struct{}

func (rigDevice) Snapshot() domain.DeviceInfo {
	return domain.DeviceInfo{Model: "Rig 9", Manufacturer: "Acme", Version: "6.1"}
}

func (rigDevice) DeviceName() string { return "rig" }

type asnResolver struct{}

func (asnResolver) Lookup(context.Context, string) (geoip.Info, error) {
	return geoip.Info{ASN: "AS64500", Org: "Example Net"}, nil
}

type answers struct {
	mu   sync.Mutex
	keys []string
}

func (a *answers) PromptKey(ctx context.Context, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) == 0 {
		<-ctx.Done()
		return "", ctx.Err()
	}
	k := a.keys[0]
	a.keys = a.keys[1:]
	return k, nil
}

type game struct {
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

func (g *game) Done() <-chan struct{} { return g.done }

func (g *game) Stop() error {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()
	g.once.Do(func() { close(g.done) })
	return nil
}

func (g *game) wasStopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stopped
}

type LicenseFlowSuite struct {
	suite.Suite

	logger *slog.Logger
	logs   *testutil.LogCapture
	base   string
	admin  *adminclient.Client
	cancel context.CancelFunc
	served chan error
}

func TestLicenseFlowSuite(t *testing.T) {
	suite.Run(t, new(LicenseFlowSuite))
}

func (s *LicenseFlowSuite) SetupTest() {
	s.logger, s.logs = testutil.NewTestLogger(s.T())
	logger := s.logger

	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(s.T().TempDir(), "license_data")
	cfg.Security.AdminToken = adminToken
	cfg.Security.RateLimit.Enabled = false
	cfg.Telemetry.MetricsEnabled = false
	cfg.Telemetry.TraceExporter = "none"
	cfg.GeoIP.Enabled = false
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	server, err := app.NewServerApplication(ctx, cfg, logger, asnResolver{})
	s.Require().NoError(err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)

	s.cancel = cancel
	s.served = make(chan error, 1)
	go func() { s.served <- server.Serve(ctx, ln) }()

	s.base = "http://" + ln.Addr().String()
	s.admin = adminclient.New(s.base, adminToken, nil, logger)
}

func (s *LicenseFlowSuite) TearDownTest() {
	s.cancel()
	select {
	case err := <-s.served:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("server did not stop")
	}
	s.logs.AssertNotLogged(s.T(), playerKey)
	s.logs.AssertNotLogged(s.T(), wrongKey)
}

// launcher builds a launcher against the running server
func (s *LicenseFlowSuite) launcher(g *game, stopOnDisconnect bool, keys ...string) (*app.LauncherApplication, *license.Session, license.KeyStore) {
	logger := s.logger
	store := license.NewFileKeyStore(filepath.Join(s.T().TempDir(), "prefs.json"), nil, logger)

	notices := make(chan license.Notice, 1)
	session, err := license.NewSession(license.Options{
		Server:            license.NewHTTPClient(s.base, nil, 2*time.Second, logger),
		Store:             store,
		Device:            rigDevice{},
		CodeHash:          "424242",
		HeartbeatInterval: 30 * time.Millisecond,
		HeartbeatTimeout:  time.Second,
		Notifier:          app.ForwardNotices(notices),
		Logger:            logger,
	})
	s.Require().NoError(err)

	cfg := config.Default().Launcher
	cfg.StopGameOnDisconnect = stopOnDisconnect

	a := app.NewLauncherWithDeps(app.LauncherDeps{
		Config:  cfg,
		Session: session,
		Store:   store,
		Launch: func(context.Context, string, bool) (app.GameProcess, error) {
			return g, nil
		},
		Prompt:  &answers{keys: keys},
		Notices: notices,
		Logger:  logger,
	})
	return a, session, store
}

func (s *LicenseFlowSuite) TestVerifyHeartbeatAndRevoke() {
	ctx := context.Background()
	t := s.T()

	result, err := s.admin.AddKey(ctx, playerKey)
	require.NoError(t, err)
	require.Equal(t, domain.ResultAdded, result)

	g := &game{done: make(chan struct{})}
	launcher, session, store := s.launcher(g, true, wrongKey, playerKey)

	errc := make(chan error, 1)
	go func() { errc <- launcher.Run(ctx) }()

	require.Eventually(t, func() bool {
		conns, err := s.admin.Connections(ctx)
		return err == nil && len(conns) == 1 && conns[0].Active
	}, 3*time.Second, 20*time.Millisecond)

	conns, err := s.admin.Connections(ctx)
	require.NoError(t, err)
	assert.Equal(t, playerKey, conns[0].Key)
	assert.Equal(t, "rig", conns[0].DeviceName)
	assert.Equal(t, "Rig 9", conns[0].DeviceInfo.Model)
	assert.Equal(t, "AS64500", conns[0].ASN)

	failed, err := s.admin.FailedLogins(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, wrongKey, failed[0].Key)
	assert.Equal(t, "wrong key", failed[0].Reason)

	attempts, err := s.admin.Attempts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, playerKey, stored)
	assert.True(t, session.HeartbeatRunning())

	result, err = s.admin.RemoveKey(ctx, playerKey)
	require.NoError(t, err)
	require.Equal(t, domain.ResultRemoved, result)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("launcher kept running after the key was revoked")
	}
	assert.True(t, g.wasStopped())
	assert.Equal(t, license.StateDisconnected, session.State())
}

func (s *LicenseFlowSuite) TestBannedDeviceIsRejected() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	t := s.T()

	_, err := s.admin.AddKey(ctx, playerKey)
	require.NoError(t, err)
	_, err = s.admin.Ban(ctx, v1.BanRequest{Type: domain.BanDevice, Value: "rig", Reason: "chargeback"})
	require.NoError(t, err)

	g := &game{done: make(chan struct{})}
	launcher, session, _ := s.launcher(g, false, playerKey)

	errc := make(chan error, 1)
	go func() { errc <- launcher.Run(ctx) }()

	require.Eventually(t, func() bool {
		failed, err := s.admin.FailedLogins(ctx)
		return err == nil && len(failed) == 1
	}, 3*time.Second, 20*time.Millisecond)

	failed, err := s.admin.FailedLogins(ctx)
	require.NoError(t, err)
	assert.Equal(t, "banned device", failed[0].Reason)
	assert.False(t, session.Verified())

	cancel()
	select {
	case <-errc:
	case <-time.After(3 * time.Second):
		t.Fatal("launcher did not stop")
	}

	conns, err := s.admin.Connections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, conns)
}
