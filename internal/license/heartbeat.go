package license

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/security"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// heartbeatWorker is the handle of one running heartbeat goroutine
type heartbeatWorker struct {
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// StartHeartbeat starts the heartbeat for key, replacing any running
// worker. The session must be Verified. An empty key uses the verified key.
func (s *Session) StartHeartbeat(key string) error {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	s.stopWorker()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperrors.ErrSessionClosed
	}
	if s.state != StateVerified {
		state := s.state
		s.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrTypeValidation, "heartbeat requires a verified session", apperrors.ErrNotVerified).
			WithContext("state", state.String())
	}
	if key == "" {
		key = s.key
	}

	s.gen++
	ctx, cancel := context.WithCancel(infrastructure.ContextWithTraceID(context.Background()))
	w := &heartbeatWorker{gen: s.gen, cancel: cancel, done: make(chan struct{})}
	s.worker = w
	s.mu.Unlock()

	s.metrics.workerStarted(ctx)
	s.logInfo(ctx, "heartbeat_start", "started", key,
		slog.Uint64("generation", w.gen),
		slog.Duration("interval", s.interval))

	go s.runHeartbeat(ctx, w, key)
	return nil
}

// StopHeartbeat stops the worker, if any, and waits for it to exit. A
// Verified session becomes Disconnected whether or not a worker was running.
func (s *Session) StopHeartbeat() {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	s.stopWorker()

	s.mu.Lock()
	if s.state == StateVerified {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
}

// HeartbeatRunning reports whether a worker is currently registered
func (s *Session) HeartbeatRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worker != nil
}

// stopWorker detaches, cancels and drains the current worker without
// touching state. Callers hold hbMu but not mu.
func (s *Session) stopWorker() bool {
	s.mu.Lock()
	w := s.worker
	s.worker = nil
	s.mu.Unlock()

	if w == nil {
		return false
	}

	w.cancel()
	<-w.done
	return true
}

func (s *Session) runHeartbeat(ctx context.Context, w *heartbeatWorker, key string) {
	defer close(w.done)
	defer s.metrics.workerStopped(context.Background())

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logDebug(ctx, "heartbeat_stop", "cancelled", key, slog.Uint64("generation", w.gen))
			return
		case <-timer.C:
		}

		err := s.beat(ctx, key)
		if ctx.Err() != nil {
			// stopped while the request was in flight
			s.logDebug(ctx, "heartbeat_stop", "cancelled", key, slog.Uint64("generation", w.gen))
			return
		}

		s.metrics.recordHeartbeat(ctx, err == nil)
		if err != nil {
			s.heartbeatFailed(ctx, w, key, err)
			return
		}

		timer.Reset(s.interval)
	}
}

func (s *Session) beat(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.server.Heartbeat(ctx, domain.HeartbeatRequest{
		Key:        key,
		DeviceName: s.device.DeviceName(),
		DeviceInfo: s.device.Snapshot(),
	})
}

// heartbeatFailed moves the session to Disconnected, unless the worker has
// already been superseded, and notifies once.
func (s *Session) heartbeatFailed(ctx context.Context, w *heartbeatWorker, key string, err error) {
	s.mu.Lock()
	if s.worker != w {
		s.mu.Unlock()
		return
	}
	s.worker = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.logWarn(ctx, "heartbeat", "failed", key,
		slog.String("error", err.Error()),
		slog.String("error_type", string(apperrors.TypeOf(err))),
		slog.String("license_key_hash", security.HashLicenseKey(key)))

	s.notifier.Notify(Notice{
		Kind:    NoticeDisconnected,
		Message: MsgNoServerConnection,
		Err:     err,
	})
}
