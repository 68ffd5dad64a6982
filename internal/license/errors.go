package license

import (
	"errors"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// Messages shown to the player
const (
	MsgEmptyKey               = "Key cannot be empty"
	MsgInvalidKey             = "Invalid key"
	MsgServerConnectionFailed = "Server connection failed"
	MsgWrongKey               = "Wrong key"
	MsgBanned                 = "This key or device is banned"
	MsgServerError            = "Server error"
	MsgVerified               = "License verified"
	MsgNoServerConnection     = "No server connection"
	MsgLaunchTargetMissing    = "Game engine not installed, opening download page"
)

// UserMessage maps an error from this package to the text shown to the
// player. A nil error is a successful verification.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return MsgVerified
	case errors.Is(err, apperrors.ErrEmptyKey):
		return MsgEmptyKey
	case errors.Is(err, apperrors.ErrKeyRejected):
		return MsgWrongKey
	case errors.Is(err, apperrors.ErrKeyBanned):
		return MsgBanned
	case errors.Is(err, apperrors.ErrHeartbeatFailed):
		return MsgNoServerConnection
	case errors.Is(err, apperrors.ErrLaunchTargetMissing):
		return MsgLaunchTargetMissing
	}

	switch apperrors.TypeOf(err) {
	case apperrors.ErrTypeTransport:
		return MsgServerConnectionFailed
	case apperrors.ErrTypeValidation:
		return MsgInvalidKey
	}
	return MsgServerError
}

// Retriable reports whether the user can simply try again
func Retriable(err error) bool {
	return apperrors.IsType(err, apperrors.ErrTypeTransport)
}

// rejectionFor builds the error for a non-success check result
func rejectionFor(result string) error {
	switch result {
	case domain.ResultWrong:
		return apperrors.NewRejectionError(result, apperrors.ErrKeyRejected)
	case domain.ResultBanned:
		return apperrors.NewRejectionError(result, apperrors.ErrKeyBanned)
	default:
		return apperrors.NewRejectionError(result, apperrors.ErrServerRejected)
	}
}
