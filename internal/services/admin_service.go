package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/security"
	"github.com/ernyzasxash/clientt/internal/storage"
	"github.com/ernyzasxash/clientt/internal/websocket"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
	"github.com/ernyzasxash/clientt/pkg/contracts/events"
)

// AdminOptions configures an AdminService
type AdminOptions struct {
	Keys     storage.KeyStore
	Bans     storage.BanStore
	Activity storage.ActivityStore
	Feed     websocket.Publisher
	Metrics  *ServerMetrics
	Logger   *slog.Logger
	Now      func() time.Time
	// ActiveWindow is how recently a connection must have been seen to
	// count as active.
	ActiveWindow time.Duration
}

// AdminService manages keys and bans and exposes recorded activity
type AdminService struct {
	keys         storage.KeyStore
	bans         storage.BanStore
	activity     storage.ActivityStore
	feed         websocket.Publisher
	metrics      *ServerMetrics
	logger       *slog.Logger
	now          func() time.Time
	activeWindow time.Duration
}

// NewAdminService creates an AdminService
func NewAdminService(opts AdminOptions) (*AdminService, error) {
	if opts.Keys == nil || opts.Bans == nil || opts.Activity == nil {
		return nil, apperrors.NewConfigError("admin service requires key, ban and activity stores", nil)
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
	if opts.ActiveWindow <= 0 {
		opts.ActiveWindow = 5 * time.Second
	}

	return &AdminService{
		keys:         opts.Keys,
		bans:         opts.Bans,
		activity:     opts.Activity,
		feed:         opts.Feed,
		metrics:      opts.Metrics,
		logger:       opts.Logger.With(slog.String("component", "admin_service")),
		now:          opts.Now,
		activeWindow: opts.ActiveWindow,
	}, nil
}

// AddKey authorizes key, returning added or exists
func (s *AdminService) AddKey(ctx context.Context, key string) (string, error) {
	key, err := security.NormalizeLicenseKey(key)
	if err != nil {
		return "", err
	}
	added, err := s.keys.AddKey(ctx, key)
	if err != nil {
		return "", err
	}
	return s.changed(ctx, events.MessageTypeKeyChanged, "add", security.MaskLicenseKey(key), added, domain.ResultAdded, domain.ResultExists), nil
}

// RemoveKey revokes key, returning removed or not_found
func (s *AdminService) RemoveKey(ctx context.Context, key string) (string, error) {
	key, err := security.NormalizeLicenseKey(key)
	if err != nil {
		return "", err
	}
	removed, err := s.keys.RemoveKey(ctx, key)
	if err != nil {
		return "", err
	}
	return s.changed(ctx, events.MessageTypeKeyChanged, "remove", security.MaskLicenseKey(key), removed, domain.ResultRemoved, domain.ResultNotFound), nil
}

// ListKeys returns every authorized key
func (s *AdminService) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := s.keys.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// Ban adds a ban entry, returning added or exists
func (s *AdminService) Ban(ctx context.Context, req v1.BanRequest) (string, error) {
	value := strings.TrimSpace(req.Value)
	if !req.Type.Valid() {
		return "", apperrors.NewAppValidationError("unknown ban type", apperrors.ErrInvalidBanType).
			WithContext("type", string(req.Type))
	}
	if value == "" {
		return "", apperrors.NewAppValidationError("ban value is empty", nil)
	}

	added, err := s.bans.AddBan(ctx, domain.Ban{
		Type:      req.Type,
		Value:     value,
		Reason:    strings.TrimSpace(req.Reason),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return s.changed(ctx, events.MessageTypeBanChanged, "ban", banTarget(req.Type, value), added, domain.ResultAdded, domain.ResultExists), nil
}

// Unban removes a ban entry, returning removed or not_found
func (s *AdminService) Unban(ctx context.Context, banType domain.BanType, value string) (string, error) {
	value = strings.TrimSpace(value)
	if !banType.Valid() {
		return "", apperrors.NewAppValidationError("unknown ban type", apperrors.ErrInvalidBanType).
			WithContext("type", string(banType))
	}
	removed, err := s.bans.RemoveBan(ctx, banType, value)
	if err != nil {
		return "", err
	}
	return s.changed(ctx, events.MessageTypeBanChanged, "unban", banTarget(banType, value), removed, domain.ResultRemoved, domain.ResultNotFound), nil
}

// Bans lists the ban entries
func (s *AdminService) Bans(ctx context.Context) ([]domain.Ban, error) {
	bans, err := s.bans.ListBans(ctx)
	if err != nil {
		return nil, err
	}
	if bans == nil {
		bans = []domain.Ban{}
	}
	return bans, nil
}

// Connections lists connection records. Active is derived from LastSeen
// at read time.
func (s *AdminService) Connections(ctx context.Context) ([]v1.ConnectionView, error) {
	conns, err := s.activity.Connections(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]v1.ConnectionView, 0, len(conns))
	for _, c := range conns {
		c.Active = now.Sub(c.LastSeen) <= s.activeWindow
		views = append(views, v1.ConnectionView{
			Connection:       c,
			LastSeenReadable: c.LastSeen.UTC().Format(time.RFC3339),
		})
	}
	return views, nil
}

// FailedLogins lists rejected checks
func (s *AdminService) FailedLogins(ctx context.Context) ([]domain.FailedLogin, error) {
	failed, err := s.activity.FailedLogins(ctx)
	if err != nil {
		return nil, err
	}
	if failed == nil {
		failed = []domain.FailedLogin{}
	}
	return failed, nil
}

// Attempts returns the most recent check attempts
func (s *AdminService) Attempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	attempts, err := s.activity.Attempts(ctx, limit)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	return attempts, nil
}

// changed picks the result, then records and announces the change
func (s *AdminService) changed(ctx context.Context, msgType events.MessageType, action, target string, ok bool, okResult, otherResult string) string {
	result := otherResult
	if ok {
		result = okResult
	}

	s.metrics.adminChange(ctx, action, result)
	s.feed.Publish(ctx, msgType, events.AdminChange{
		Action: action,
		Target: target,
		Result: result,
	})
	s.logger.InfoContext(ctx, "Admin change",
		slog.String("action", action),
		slog.String("target", target),
		slog.String("result", result))
	return result
}

func banTarget(t domain.BanType, value string) string {
	if t == domain.BanKey {
		value = security.MaskLicenseKey(value)
	}
	return string(t) + ":" + value
}
