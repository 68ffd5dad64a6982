package license

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// licenseServer is an httptest license server counting heartbeats
type licenseServer struct {
	*httptest.Server
	heartbeats      atomic.Int32
	heartbeatStatus atomic.Int32
	heartbeatDelay  atomic.Int64
	lastKey         atomic.Value
}

func newLicenseServer(t *testing.T, result string) *licenseServer {
	t.Helper()
	ls := &licenseServer{}
	ls.heartbeatStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc(CheckPath, func(w http.ResponseWriter, r *http.Request) {
		var req domain.VerificationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ls.lastKey.Store(req.Key)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.CheckResponse{Result: result})
	})
	mux.HandleFunc(HeartbeatPath, func(w http.ResponseWriter, r *http.Request) {
		ls.heartbeats.Add(1)
		if d := time.Duration(ls.heartbeatDelay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(int(ls.heartbeatStatus.Load()))
	})

	ls.Server = httptest.NewServer(mux)
	t.Cleanup(ls.Close)
	return ls
}

func newHTTPSession(t *testing.T, ls *licenseServer, notices chanNotifier) *Session {
	t.Helper()
	s, err := NewSession(Options{
		Server:            NewHTTPClient(ls.URL, nil, time.Second, discardLogger()),
		Store:             &memoryStore{},
		Device:            staticDevice{},
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  100 * time.Millisecond,
		Notifier:          notices,
		Logger:            discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHeartbeatRequiresVerifiedSession(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	s := newHTTPSession(t, ls, make(chanNotifier, 1))

	err := s.StartHeartbeat("ABC123")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotVerified)
	assert.False(t, s.HeartbeatRunning())
	assert.Zero(t, ls.heartbeats.Load())
}

func TestHeartbeatVerifiedFlow(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	notices := make(chanNotifier, 1)
	s := newHTTPSession(t, ls, notices)

	state, err := s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	require.Equal(t, StateVerified, state)
	assert.Equal(t, "ABC123", ls.lastKey.Load())

	require.NoError(t, s.StartHeartbeat(""))
	assert.Eventually(t, func() bool { return ls.heartbeats.Load() >= 3 },
		2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateVerified, s.State())

	s.StopHeartbeat()
	assert.False(t, s.HeartbeatRunning())
	assert.Equal(t, StateDisconnected, s.State())

	sent := ls.heartbeats.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, sent, ls.heartbeats.Load(), "no heartbeats after stop")
	assert.Empty(t, notices, "stopping is not a failure")
}

func TestHeartbeatFirstBeatIsImmediate(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	s, err := NewSession(Options{
		Server:            NewHTTPClient(ls.URL, nil, time.Second, discardLogger()),
		Store:             &memoryStore{},
		Device:            staticDevice{},
		HeartbeatInterval: time.Hour,
		Logger:            discardLogger(),
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	require.NoError(t, s.StartHeartbeat(""))

	assert.Eventually(t, func() bool { return ls.heartbeats.Load() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestHeartbeatRestartKeepsSingleWorker(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	s, err := NewSession(Options{
		Server:            NewHTTPClient(ls.URL, nil, time.Second, discardLogger()),
		Store:             &memoryStore{},
		Device:            staticDevice{},
		HeartbeatInterval: time.Hour,
		Logger:            discardLogger(),
	})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.StartHeartbeat(""))
	}
	assert.True(t, s.HeartbeatRunning())
	assert.Equal(t, StateVerified, s.State())

	// each start sends one immediate beat, and the hour long interval
	// means only a leaked worker could send more
	assert.Eventually(t, func() bool { return ls.heartbeats.Load() >= 1 },
		time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, ls.heartbeats.Load(), int32(5))
}

func TestHeartbeatRejectedStatusDisconnects(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusInternalServerError} {
		ls := newLicenseServer(t, domain.ResultSuccess)
		notices := make(chanNotifier, 1)
		s := newHTTPSession(t, ls, notices)

		_, err := s.Verify(context.Background(), "ABC123")
		require.NoError(t, err)

		ls.heartbeatStatus.Store(int32(status))
		require.NoError(t, s.StartHeartbeat(""))

		select {
		case n := <-notices:
			assert.Equal(t, NoticeDisconnected, n.Kind)
			assert.Equal(t, MsgNoServerConnection, n.Message)
			assert.ErrorIs(t, n.Err, apperrors.ErrHeartbeatFailed)
		case <-time.After(2 * time.Second):
			t.Fatalf("no disconnect notice for status %d", status)
		}

		assert.Equal(t, StateDisconnected, s.State())
		assert.False(t, s.HeartbeatRunning())

		sent := ls.heartbeats.Load()
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, sent, ls.heartbeats.Load())
	}
}

func TestHeartbeatTimeoutDisconnects(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	notices := make(chanNotifier, 1)
	s := newHTTPSession(t, ls, notices)

	_, err := s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	ls.heartbeatDelay.Store(int64(time.Second))
	require.NoError(t, s.StartHeartbeat(""))

	select {
	case n := <-notices:
		assert.Equal(t, NoticeDisconnected, n.Kind)
		assert.True(t, apperrors.IsType(n.Err, apperrors.ErrTypeTransport))
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect notice after heartbeat timeout")
	}

	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, int32(1), ls.heartbeats.Load())
}

func TestHeartbeatUnreachableServer(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	notices := make(chanNotifier, 1)
	s := newHTTPSession(t, ls, notices)

	_, err := s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)

	ls.Close()
	require.NoError(t, s.StartHeartbeat(""))

	select {
	case n := <-notices:
		assert.True(t, apperrors.IsType(n.Err, apperrors.ErrTypeTransport))
	case <-time.After(2 * time.Second):
		t.Fatal("no disconnect notice for unreachable server")
	}
	assert.Equal(t, StateDisconnected, s.State())
}

func TestStopHeartbeatWithoutWorker(t *testing.T) {
	ls := newLicenseServer(t, domain.ResultSuccess)
	s := newHTTPSession(t, ls, make(chanNotifier, 1))

	s.StopHeartbeat()
	assert.Equal(t, StateUnverified, s.State())

	_, err := s.Verify(context.Background(), "ABC123")
	require.NoError(t, err)
	s.StopHeartbeat()
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Verified())
	assert.False(t, s.HeartbeatRunning())

	// stopping again leaves it disconnected
	s.StopHeartbeat()
	assert.Equal(t, StateDisconnected, s.State())
}
