package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/geoip"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/security"
	"github.com/ernyzasxash/clientt/internal/storage"
	"github.com/ernyzasxash/clientt/internal/websocket"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
	"github.com/ernyzasxash/clientt/pkg/contracts/events"
)

// ClientRequest is a check or heartbeat as seen by the service
type ClientRequest struct {
	Key        string
	IP         string
	DeviceName string
	DeviceInfo domain.DeviceInfo
	CodeHash   string
}

// LicenseOptions configures a LicenseService
type LicenseOptions struct {
	Keys     storage.KeyStore
	Bans     storage.BanStore
	Activity storage.ActivityStore
	GeoIP    geoip.Resolver
	Feed     websocket.Publisher
	Metrics  *ServerMetrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// LicenseService decides checks and heartbeats
type LicenseService struct {
	keys     storage.KeyStore
	bans     storage.BanStore
	activity storage.ActivityStore
	geo      geoip.Resolver
	feed     websocket.Publisher
	metrics  *ServerMetrics
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
}

// NewLicenseService creates a LicenseService. Keys, Bans and Activity are
// required; GeoIP and Feed default to no-ops.
func NewLicenseService(opts LicenseOptions) (*LicenseService, error) {
	if opts.Keys == nil || opts.Bans == nil || opts.Activity == nil {
		return nil, apperrors.NewConfigError("license service requires key, ban and activity stores", nil)
	}
	if opts.GeoIP == nil {
		opts.GeoIP = geoip.Nop{}
	}
	if opts.Feed == nil {
		opts.Feed = websocket.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = infrastructure.GetLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &LicenseService{
		keys:     opts.Keys,
		bans:     opts.Bans,
		activity: opts.Activity,
		geo:      opts.GeoIP,
		feed:     opts.Feed,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer(infrastructure.InstrumentationName),
		logger:   opts.Logger.With(slog.String("component", "license_service")),
		now:      opts.Now,
	}, nil
}

// Check answers a license check. Wrong and banned keys are results, not
// errors; an error means the request was invalid or storage failed.
func (s *LicenseService) Check(ctx context.Context, req ClientRequest) (domain.CheckResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license_service.check")
	defer span.End()

	key, err := security.NormalizeLicenseKey(req.Key)
	if err != nil {
		return domain.CheckResponse{}, err
	}
	req.Key = key

	info := s.lookup(ctx, req.IP)
	now := s.now().UTC()

	result := domain.ResultWrong
	reason := "wrong key"

	ban, err := s.bans.FindBan(ctx, banCandidates(req, info))
	if err != nil {
		return s.failed(ctx, span, "check", err)
	}
	if ban != nil {
		result = domain.ResultBanned
		reason = fmt.Sprintf("banned %s", ban.Type)
	} else {
		ok, err := s.keys.HasKey(ctx, key)
		if err != nil {
			return s.failed(ctx, span, "check", err)
		}
		if ok {
			result = domain.ResultSuccess
		}
	}

	s.record(ctx, s.activity.AppendAttempt(ctx, domain.Attempt{
		Time:       now,
		Key:        key,
		IP:         req.IP,
		ASN:        info.ASN,
		Org:        info.Org,
		DeviceName: req.DeviceName,
		CodeHash:   req.CodeHash,
		Result:     result,
	}), "attempt")

	if result == domain.ResultSuccess {
		s.record(ctx, s.activity.RecordConnection(ctx, connection(req, info, now)), "connection")
	} else {
		s.record(ctx, s.activity.RecordFailedLogin(ctx, domain.FailedLogin{
			Time:       now,
			Key:        key,
			IP:         req.IP,
			ASN:        info.ASN,
			DeviceName: req.DeviceName,
			Reason:     reason,
		}), "failed_login")
	}

	span.SetAttributes(attribute.String("license.result", result))
	s.metrics.check(ctx, result)
	s.publish(ctx, events.MessageTypeCheck, req, info, result)
	s.logResult(ctx, "check", result, req, info)

	return domain.CheckResponse{Result: result}, nil
}

// Heartbeat refreshes the connection record of a still authorized key.
// Removed keys answer unauthorized and banned keys banned; the launcher
// treats both as a lost connection.
func (s *LicenseService) Heartbeat(ctx context.Context, req ClientRequest) (domain.CheckResponse, error) {
	ctx, span := s.tracer.Start(ctx, "license_service.heartbeat")
	defer span.End()

	key, err := security.NormalizeLicenseKey(req.Key)
	if err != nil {
		return domain.CheckResponse{}, err
	}
	req.Key = key

	info := s.lookup(ctx, req.IP)

	result := domain.ResultOK
	ok, err := s.keys.HasKey(ctx, key)
	if err != nil {
		return s.failed(ctx, span, "heartbeat", err)
	}
	if !ok {
		result = domain.ResultUnauthorized
	} else {
		ban, err := s.bans.FindBan(ctx, banCandidates(req, info))
		if err != nil {
			return s.failed(ctx, span, "heartbeat", err)
		}
		if ban != nil {
			result = domain.ResultBanned
		}
	}

	if result == domain.ResultOK {
		s.record(ctx, s.activity.RecordConnection(ctx, connection(req, info, s.now().UTC())), "connection")
	}

	span.SetAttributes(attribute.String("license.result", result))
	s.metrics.heartbeat(ctx, result)
	s.publish(ctx, events.MessageTypeHeartbeat, req, info, result)
	s.logResult(ctx, "heartbeat", result, req, info)

	return domain.CheckResponse{Result: result}, nil
}

// lookup resolves ASN information. Failures leave it empty.
func (s *LicenseService) lookup(ctx context.Context, ip string) geoip.Info {
	if ip == "" {
		return geoip.Info{}
	}
	info, err := s.geo.Lookup(ctx, ip)
	if err != nil {
		s.logger.DebugContext(ctx, "ASN lookup failed",
			slog.String("ip", ip),
			slog.String("error", err.Error()))
		return geoip.Info{}
	}
	return info
}

// record logs bookkeeping failures without failing the request
func (s *LicenseService) record(ctx context.Context, err error, what string) {
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record activity",
			slog.String("record", what),
			slog.String("error", err.Error()))
	}
}

func (s *LicenseService) failed(ctx context.Context, span trace.Span, action string, err error) (domain.CheckResponse, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.logger.ErrorContext(ctx, "License lookup failed",
		slog.String("action", action),
		slog.String("error", err.Error()))
	return domain.CheckResponse{}, err
}

func (s *LicenseService) publish(ctx context.Context, msgType events.MessageType, req ClientRequest, info geoip.Info, result string) {
	s.feed.Publish(ctx, msgType, events.LicenseActivity{
		Key:        security.MaskLicenseKey(req.Key),
		IP:         req.IP,
		ASN:        info.ASN,
		DeviceName: req.DeviceName,
		Result:     result,
	})
}

func (s *LicenseService) logResult(ctx context.Context, action, result string, req ClientRequest, info geoip.Info) {
	level := slog.LevelInfo
	if action == "heartbeat" && result == domain.ResultOK {
		level = slog.LevelDebug
	}
	s.logger.LogAttrs(ctx, level, "License request handled",
		slog.String("action", action),
		slog.String("result", result),
		slog.String("license_key", security.MaskLicenseKey(req.Key)),
		slog.String("license_hash", security.HashLicenseKey(req.Key)),
		slog.String("ip", req.IP),
		slog.String("asn", info.ASN),
		slog.String("device", req.DeviceName))
}

func banCandidates(req ClientRequest, info geoip.Info) map[domain.BanType]string {
	return map[domain.BanType]string{
		domain.BanIP:     req.IP,
		domain.BanASN:    info.ASN,
		domain.BanKey:    req.Key,
		domain.BanDevice: req.DeviceName,
	}
}

func connection(req ClientRequest, info geoip.Info, now time.Time) domain.Connection {
	return domain.Connection{
		Key:        req.Key,
		IP:         req.IP,
		ASN:        info.ASN,
		Org:        info.Org,
		DeviceName: req.DeviceName,
		DeviceInfo: req.DeviceInfo,
		LastSeen:   now,
	}
}
