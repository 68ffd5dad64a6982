package license

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/security"
)

// logAction logs a session action with the key masked and hashed, and
// mirrors it as an event on the active span.
func (s *Session) logAction(ctx context.Context, level slog.Level, action, result, key string, attrs ...slog.Attr) {
	infrastructure.AddSpanEvent(ctx, "license."+action,
		attribute.String("result", result))

	all := []slog.Attr{
		slog.String("action", action),
		slog.String("result", result),
	}
	if key != "" {
		all = append(all,
			slog.String("license_key_masked", security.MaskLicenseKey(key)),
			slog.String("license_key_hash", security.HashLicenseKey(key)))
	}
	all = append(all, attrs...)

	s.logger.LogAttrs(ctx, level, "license "+action, all...)
}

func (s *Session) logInfo(ctx context.Context, action, result, key string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelInfo, action, result, key, attrs...)
}

func (s *Session) logWarn(ctx context.Context, action, result, key string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelWarn, action, result, key, attrs...)
}

func (s *Session) logDebug(ctx context.Context, action, result, key string, attrs ...slog.Attr) {
	s.logAction(ctx, slog.LevelDebug, action, result, key, attrs...)
}
