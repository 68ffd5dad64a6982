package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// License errors
var (
	ErrEmptyKey            = errors.New("license key cannot be empty")
	ErrKeyRejected         = errors.New("license key rejected")
	ErrKeyBanned           = errors.New("license key or device banned")
	ErrServerRejected      = errors.New("license server returned an error")
	ErrNotVerified         = errors.New("license session not verified")
	ErrSessionClosed       = errors.New("license session closed")
	ErrHeartbeatFailed     = errors.New("heartbeat failed")
	ErrLaunchTargetMissing = errors.New("launch target missing")
)

// License server errors
var (
	ErrKeyExists         = errors.New("key already exists")
	ErrKeyNotFound       = errors.New("key not found")
	ErrBanExists         = errors.New("ban already exists")
	ErrBanNotFound       = errors.New("ban not found")
	ErrInvalidBanType    = errors.New("invalid ban type")
	ErrAdminDisabled     = errors.New("admin api disabled")
	ErrInvalidAdminToken = errors.New("invalid admin token")
	ErrRateLimited       = errors.New("rate limited")
	ErrReadOnlyBackend   = errors.New("key backend is read only")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{}, len(pd.Extensions)+5)

	for k, v := range pd.Extensions {
		data[k] = v
	}

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = make(map[string]interface{})
	}
	pd.Extensions[key] = value
	return pd
}

// Error lets a decoded problem travel as an error on the client side
func (pd *ProblemDetails) Error() string {
	if pd.Detail != "" {
		return pd.Title + ": " + pd.Detail
	}
	return pd.Title
}
