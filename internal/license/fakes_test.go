package license

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// fakeServer records calls and answers with canned responses
type fakeServer struct {
	mu           sync.Mutex
	checks       []domain.VerificationRequest
	heartbeats   atomic.Int32
	result       string
	checkErr     error
	heartbeatErr func(n int32) error
}

func (f *fakeServer) Check(_ context.Context, req domain.VerificationRequest) (domain.CheckResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks = append(f.checks, req)
	if f.checkErr != nil {
		return domain.CheckResponse{}, f.checkErr
	}
	return domain.CheckResponse{Result: f.result}, nil
}

func (f *fakeServer) Heartbeat(_ context.Context, _ domain.HeartbeatRequest) error {
	n := f.heartbeats.Add(1)
	if f.heartbeatErr != nil {
		return f.heartbeatErr(n)
	}
	return nil
}

func (f *fakeServer) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checks)
}

func (f *fakeServer) lastCheck() domain.VerificationRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks[len(f.checks)-1]
}

// memoryStore is an in-memory KeyStore
type memoryStore struct {
	mu      sync.Mutex
	key     string
	saves   int
	saveErr error
}

func (m *memoryStore) Load(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, nil
}

func (m *memoryStore) Save(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.key = key
	return nil
}

func (m *memoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = ""
	return nil
}

func (m *memoryStore) snapshot() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key, m.saves
}

type staticDevice struct{}

func (staticDevice) Snapshot() domain.DeviceInfo {
	return domain.DeviceInfo{Model: "Test Model", Device: "test", Manufacturer: "Acme", Version: "24.04", SDK: "6.8.0"}
}

func (staticDevice) DeviceName() string { return "test-box" }

// chanNotifier forwards notices to a buffered channel
type chanNotifier chan Notice

func (c chanNotifier) Notify(n Notice) { c <- n }

var errBoom = errors.New("boom")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
