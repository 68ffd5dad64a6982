package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
)

// AdminTokenHeader carries the admin token
const AdminTokenHeader = "X-Admin-Token"

// AdminAuth guards the admin API with a shared token. With no token
// configured every admin request is refused.
func AdminAuth(token string, errorHandler *apperrors.ErrorHandler, logger *slog.Logger) func(next http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				errorHandler.HandleError(w, r, apperrors.ErrAdminDisabled)
				return
			}

			given := []byte(r.Header.Get(AdminTokenHeader))
			if subtle.ConstantTimeCompare(given, expected) != 1 {
				logger.WarnContext(r.Context(), "admin token rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", ClientIP(r)),
					slog.Bool("token_present", len(given) > 0),
				)
				errorHandler.HandleError(w, r, apperrors.ErrInvalidAdminToken)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
