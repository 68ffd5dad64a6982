// Package domain contains the wire and storage models shared by the launcher,
// the license server and the admin tooling.
package domain

import (
	"encoding/json"
	"time"
)

// Check results returned by the license server.
const (
	ResultSuccess      = "success"
	ResultWrong        = "wrong"
	ResultBanned       = "banned"
	ResultError        = "error"
	ResultOK           = "ok"
	ResultUnauthorized = "unauthorized"
)

// Admin operation results.
const (
	ResultAdded     = "added"
	ResultExists    = "exists"
	ResultRemoved   = "removed"
	ResultNotFound  = "not_found"
	ResultForbidden = "forbidden"
)

// DeviceInfo is an immutable snapshot of the host that issues a request.
type DeviceInfo struct {
	Model        string `json:"model"`
	Device       string `json:"device"`
	Manufacturer string `json:"manufacturer"`
	Version      string `json:"version"`
	SDK          string `json:"sdk"`
}

// VerificationRequest is the body of POST /check.
type VerificationRequest struct {
	Key        string     `json:"key" validate:"required,max=256,licensekey"`
	DeviceName string     `json:"device_name" validate:"max=256"`
	DeviceInfo DeviceInfo `json:"device_info"`
	CodeHash   string     `json:"code_hash" validate:"omitempty,numeric"`
	Timestamp  int64      `json:"timestamp"`
}

// HeartbeatRequest is the body of POST /heartbeat.
type HeartbeatRequest struct {
	Key        string     `json:"key" validate:"required,max=256,licensekey"`
	DeviceName string     `json:"device_name" validate:"max=256"`
	DeviceInfo DeviceInfo `json:"device_info"`
}

// CheckResponse is returned by /check and /heartbeat.
type CheckResponse struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the server accepted the key.
func (r CheckResponse) Succeeded() bool {
	return r.Result == ResultSuccess
}

// UnmarshalDeviceInfo accepts device info either as a JSON object or as a
// JSON encoded string containing an object, which older clients send.
func UnmarshalDeviceInfo(raw json.RawMessage) (DeviceInfo, error) {
	var info DeviceInfo
	if len(raw) == 0 || string(raw) == "null" {
		return info, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return info, err
		}
		if s == "" {
			return info, nil
		}
		raw = json.RawMessage(s)
	}
	err := json.Unmarshal(raw, &info)
	return info, err
}

// BanType identifies what a ban entry matches on.
type BanType string

const (
	BanIP     BanType = "ip"
	BanASN    BanType = "asn"
	BanKey    BanType = "key"
	BanDevice BanType = "device"
)

// Valid reports whether t is a known ban type.
func (t BanType) Valid() bool {
	switch t {
	case BanIP, BanASN, BanKey, BanDevice:
		return true
	}
	return false
}

// Ban is a single ban list entry.
type Ban struct {
	Type      BanType   `json:"type"`
	Value     string    `json:"value"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Connection is the last known activity of a license key.
type Connection struct {
	Key        string     `json:"key"`
	IP         string     `json:"ip"`
	ASN        string     `json:"asn,omitempty"`
	Org        string     `json:"org,omitempty"`
	DeviceName string     `json:"device"`
	DeviceInfo DeviceInfo `json:"device_info"`
	LastSeen   time.Time  `json:"last_seen"`
	Active     bool       `json:"active"`
}

// FailedLogin records a rejected check.
type FailedLogin struct {
	Time       time.Time `json:"time"`
	Key        string    `json:"key"`
	IP         string    `json:"ip"`
	ASN        string    `json:"asn,omitempty"`
	DeviceName string    `json:"device,omitempty"`
	Reason     string    `json:"reason"`
}

// Attempt is one line of the check attempts log.
type Attempt struct {
	Time       time.Time `json:"time"`
	Key        string    `json:"key"`
	IP         string    `json:"ip"`
	ASN        string    `json:"asn,omitempty"`
	Org        string    `json:"org,omitempty"`
	DeviceName string    `json:"device,omitempty"`
	CodeHash   string    `json:"code_hash,omitempty"`
	Result     string    `json:"result"`
}
