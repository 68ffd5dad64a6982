// Package v1 contains the admin API request and response bodies.
package v1

import (
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// KeyRequest adds or removes an authorized key.
type KeyRequest struct {
	Key string `json:"key" validate:"required,max=256,licensekey"`
}

// BanRequest adds or removes a ban entry.
type BanRequest struct {
	Type   domain.BanType `json:"type" validate:"required,oneof=ip asn key device"`
	Value  string         `json:"value" validate:"required,max=256"`
	Reason string         `json:"reason,omitempty" validate:"max=512"`
}

// ResultResponse is the generic admin mutation response.
type ResultResponse struct {
	Result string `json:"result"`
}

// KeysResponse lists authorized keys.
type KeysResponse struct {
	Result string   `json:"result"`
	Keys   []string `json:"keys"`
}

// BansResponse lists ban entries.
type BansResponse struct {
	Result string       `json:"result"`
	Bans   []domain.Ban `json:"bans"`
}

// ConnectionsResponse lists connection records.
type ConnectionsResponse struct {
	Result      string           `json:"result"`
	Connections []ConnectionView `json:"connections"`
}

// ConnectionView adds a human readable last-seen to a connection.
type ConnectionView struct {
	domain.Connection
	LastSeenReadable string `json:"last_seen_readable"`
}

// FailedLoginsResponse lists rejected checks.
type FailedLoginsResponse struct {
	Result       string               `json:"result"`
	FailedLogins []domain.FailedLogin `json:"failed_logins"`
}

// AttemptsResponse lists logged check attempts.
type AttemptsResponse struct {
	Result   string           `json:"result"`
	Attempts []domain.Attempt `json:"attempts"`
}
