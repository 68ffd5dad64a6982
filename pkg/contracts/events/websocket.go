// Package events contains the admin event feed contract.
package events

import (
	"time"
)

// MessageType defines the type of feed message.
type MessageType string

const (
	MessageTypeCheck      MessageType = "license:check"
	MessageTypeHeartbeat  MessageType = "license:heartbeat"
	MessageTypeKeyChanged MessageType = "admin:key"
	MessageTypeBanChanged MessageType = "admin:ban"
	MessageTypeConnect    MessageType = "connect"
)

// Message is a single event pushed to admin feed subscribers.
type Message struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// LicenseActivity is the payload of check and heartbeat events. Keys are
// always masked.
type LicenseActivity struct {
	Key        string `json:"key"`
	IP         string `json:"ip"`
	ASN        string `json:"asn,omitempty"`
	DeviceName string `json:"device,omitempty"`
	Result     string `json:"result"`
}

// AdminChange is the payload of key and ban list changes.
type AdminChange struct {
	Action string `json:"action"`
	Target string `json:"target"`
	Result string `json:"result"`
}
