package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// LicenseServer is a scripted license server. /check answers success for
// accepted keys and wrong otherwise; /heartbeat answers with the current
// heartbeat status.
type LicenseServer struct {
	*httptest.Server

	mu              sync.Mutex
	accepted        map[string]bool
	heartbeatStatus int

	checks atomic.Int32
	beats  atomic.Int32
}

// NewLicenseServer starts a server accepting keys. It is closed when the
// test ends.
func NewLicenseServer(t *testing.T, keys ...string) *LicenseServer {
	t.Helper()

	s := &LicenseServer{
		accepted:        make(map[string]bool, len(keys)),
		heartbeatStatus: http.StatusOK,
	}
	for _, k := range keys {
		s.accepted[k] = true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/check", s.handleCheck)
	mux.HandleFunc("/heartbeat", s.handleHeartbeat)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetHeartbeatStatus changes the status returned by later heartbeats
func (s *LicenseServer) SetHeartbeatStatus(status int) {
	s.mu.Lock()
	s.heartbeatStatus = status
	s.mu.Unlock()
}

// Revoke stops accepting key on /check
func (s *LicenseServer) Revoke(key string) {
	s.mu.Lock()
	delete(s.accepted, key)
	s.mu.Unlock()
}

// Checks is the number of /check requests served
func (s *LicenseServer) Checks() int { return int(s.checks.Load()) }

// Heartbeats is the number of /heartbeat requests served
func (s *LicenseServer) Heartbeats() int { return int(s.beats.Load()) }

func (s *LicenseServer) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.checks.Add(1)

	var req domain.VerificationRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	ok := s.accepted[req.Key]
	s.mu.Unlock()

	result := domain.ResultWrong
	if ok {
		result = domain.ResultSuccess
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(domain.CheckResponse{Result: result})
}

func (s *LicenseServer) handleHeartbeat(w http.ResponseWriter, _ *http.Request) {
	s.beats.Add(1)

	s.mu.Lock()
	status := s.heartbeatStatus
	s.mu.Unlock()

	result := domain.ResultOK
	if status == http.StatusForbidden {
		result = domain.ResultUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.CheckResponse{Result: result})
}
