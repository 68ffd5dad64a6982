package license

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/security"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// DeviceSource provides the device snapshot attached to requests
type DeviceSource interface {
	Snapshot() domain.DeviceInfo
	DeviceName() string
}

// NoticeKind classifies a Notice
type NoticeKind string

const (
	// NoticeDisconnected is sent once when the heartbeat fails
	NoticeDisconnected NoticeKind = "disconnected"
)

// Notice is a message from the heartbeat worker to the foreground
type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Notifier receives notices. Implementations must not block for long; the
// worker calls Notify from its own goroutine just before exiting.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

// Notify implements Notifier
func (f NotifierFunc) Notify(n Notice) { f(n) }

// Outcome is the result of the network half of a verification. It carries
// no side effects until passed to Apply.
type Outcome struct {
	Key      string
	Response domain.CheckResponse
	Err      error
	Elapsed  time.Duration
}

// Options configures a Session
type Options struct {
	Server            Server
	Store             KeyStore
	Device            DeviceSource
	CodeHash          string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	Notifier          Notifier
	Logger            *slog.Logger
	Metrics           *Metrics
	Now               func() time.Time
}

// Session owns the license state and the heartbeat worker
type Session struct {
	server   Server
	store    KeyStore
	device   DeviceSource
	codeHash string
	interval time.Duration
	timeout  time.Duration
	notifier Notifier
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	now      func() time.Time

	// hbMu serializes worker start and stop. The worker never takes it.
	hbMu sync.Mutex

	mu     sync.Mutex
	state  State
	key    string
	closed bool
	worker *heartbeatWorker
	gen    uint64
}

// NewSession creates an Unverified session
func NewSession(opts Options) (*Session, error) {
	if opts.Server == nil {
		return nil, apperrors.NewConfigError("license session requires a server", nil)
	}
	if opts.Store == nil {
		return nil, apperrors.NewConfigError("license session requires a key store", nil)
	}
	if opts.Device == nil {
		opts.Device = security.NewDeviceProbe()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = config.DefaultHeartbeatInterval
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = config.DefaultHeartbeatTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notice) {})
	}
	if opts.Logger == nil {
		opts.Logger = infrastructure.GetLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Session{
		server:   opts.Server,
		store:    opts.Store,
		device:   opts.Device,
		codeHash: opts.CodeHash,
		interval: opts.HeartbeatInterval,
		timeout:  opts.HeartbeatTimeout,
		notifier: opts.Notifier,
		logger:   opts.Logger.With(slog.String("component", "license_session")),
		metrics:  opts.Metrics,
		tracer:   otel.Tracer(infrastructure.InstrumentationName),
		now:      opts.Now,
		state:    StateUnverified,
	}, nil
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Verified reports whether the session currently holds a verified key.
// This is the flag handed to the engine at launch.
func (s *Session) Verified() bool {
	return s.State() == StateVerified
}

// Key returns the last verified key, or ""
func (s *Session) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key
}

// Verify checks key with the server and applies the outcome
func (s *Session) Verify(ctx context.Context, key string) (State, error) {
	return s.Apply(ctx, s.check(ctx, key))
}

// VerifyAsync runs the server check on a separate goroutine. The returned
// channel yields exactly one Outcome, which the caller passes to Apply on
// the goroutine that owns the UI.
func (s *Session) VerifyAsync(ctx context.Context, key string) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		ch <- s.check(ctx, key)
	}()
	return ch
}

// check performs the network half of verification. Invalid keys return
// without contacting the server.
func (s *Session) check(ctx context.Context, key string) Outcome {
	normalized, err := security.NormalizeLicenseKey(key)
	if err != nil {
		return Outcome{Key: key, Err: err}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return Outcome{Key: normalized, Err: apperrors.ErrSessionClosed}
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := s.tracer.Start(ctx, "license.verify")
	defer span.End()

	req := domain.VerificationRequest{
		Key:        normalized,
		DeviceName: s.device.DeviceName(),
		DeviceInfo: s.device.Snapshot(),
		CodeHash:   s.codeHash,
		Timestamp:  s.now().UnixMilli(),
	}

	s.logDebug(ctx, "verify", "sending", normalized,
		slog.String("device_name", req.DeviceName))

	start := time.Now()
	resp, err := s.server.Check(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		infrastructure.RecordError(ctx, err)
	} else {
		span.SetAttributes(attribute.String("license.result", resp.Result))
	}

	return Outcome{Key: normalized, Response: resp, Err: err, Elapsed: elapsed}
}

// Apply commits an Outcome to the session. Only a "success" response moves
// the session to Verified and writes the key to the store. Validation
// errors leave the session untouched; any other failure leaves it
// Unverified, stopping a running heartbeat first.
func (s *Session) Apply(ctx context.Context, out Outcome) (State, error) {
	if out.Err != nil && apperrors.IsType(out.Err, apperrors.ErrTypeValidation) {
		s.metrics.recordVerify(ctx, "invalid_input", 0)
		s.logDebug(ctx, "verify", "invalid_input", "")
		return s.State(), out.Err
	}
	if errors.Is(out.Err, apperrors.ErrSessionClosed) {
		return s.State(), out.Err
	}

	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	s.mu.Lock()
	if s.closed {
		state := s.state
		s.mu.Unlock()
		return state, apperrors.ErrSessionClosed
	}
	s.mu.Unlock()

	if out.Err == nil && out.Response.Succeeded() {
		s.mu.Lock()
		s.state = StateVerified
		s.key = out.Key
		s.mu.Unlock()

		s.metrics.recordVerify(ctx, domain.ResultSuccess, out.Elapsed)
		s.logInfo(ctx, "verify", domain.ResultSuccess, out.Key,
			slog.Duration("elapsed", out.Elapsed))

		err := s.store.Save(ctx, out.Key)
		s.metrics.keyWritten(ctx, err == nil)
		if err != nil {
			s.logWarn(ctx, "persist", "failed", out.Key, slog.String("error", err.Error()))
		}
		return StateVerified, nil
	}

	err := out.Err
	var result string
	if err == nil {
		result = out.Response.Result
		err = rejectionFor(out.Response.Result)
	} else {
		result = string(apperrors.TypeOf(err))
	}

	s.stopWorker()
	s.mu.Lock()
	s.state = StateUnverified
	s.mu.Unlock()

	s.metrics.recordVerify(ctx, result, out.Elapsed)
	s.logWarn(ctx, "verify", result, out.Key,
		slog.String("error", err.Error()),
		slog.Bool("retriable", Retriable(err)))

	return StateUnverified, err
}

// Close tears the session down. The heartbeat is always stopped; later
// verifications fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.hbMu.Lock()
	defer s.hbMu.Unlock()

	stopped := s.stopWorker()

	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	if s.state == StateVerified {
		s.state = StateDisconnected
	}
	key := s.key
	s.mu.Unlock()

	if !alreadyClosed {
		s.logInfo(context.Background(), "close", "closed", key,
			slog.Bool("heartbeat_stopped", stopped))
	}
	return nil
}
