// Package adminclient is a typed client for the license server admin API.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/internal/middleware"
	"github.com/ernyzasxash/clientt/pkg/contracts"
	v1 "github.com/ernyzasxash/clientt/pkg/contracts/api/v1"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// AdminPrefix is where the server mounts the admin API
const AdminPrefix = "/admin"

const maxResponseBytes = 8 << 20

// Client calls the admin endpoints with a shared token
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL. httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + AdminPrefix,
		token:   token,
		client:  httpClient,
		logger:  logger.With(slog.String("component", "admin_client")),
	}
}

// AddKey authorizes key. The result is added or exists.
func (c *Client) AddKey(ctx context.Context, key string) (string, error) {
	var out v1.ResultResponse
	err := c.do(ctx, http.MethodPost, "/add", v1.KeyRequest{Key: key}, &out)
	return out.Result, err
}

// RemoveKey revokes key. The result is removed or not_found.
func (c *Client) RemoveKey(ctx context.Context, key string) (string, error) {
	var out v1.ResultResponse
	err := c.do(ctx, http.MethodPost, "/remove", v1.KeyRequest{Key: key}, &out)
	return out.Result, err
}

// ListKeys returns the authorized keys
func (c *Client) ListKeys(ctx context.Context) ([]string, error) {
	var out v1.KeysResponse
	err := c.do(ctx, http.MethodGet, "/list", nil, &out)
	return out.Keys, err
}

// Ban adds a ban entry
func (c *Client) Ban(ctx context.Context, req v1.BanRequest) (string, error) {
	var out v1.ResultResponse
	err := c.do(ctx, http.MethodPost, "/ban", req, &out)
	return out.Result, err
}

// Unban removes a ban entry
func (c *Client) Unban(ctx context.Context, banType domain.BanType, value string) (string, error) {
	var out v1.ResultResponse
	err := c.do(ctx, http.MethodPost, "/unban", v1.BanRequest{Type: banType, Value: value}, &out)
	return out.Result, err
}

// Bans lists ban entries
func (c *Client) Bans(ctx context.Context) ([]domain.Ban, error) {
	var out v1.BansResponse
	err := c.do(ctx, http.MethodGet, "/bans", nil, &out)
	return out.Bans, err
}

// Connections lists connection records, most recent first
func (c *Client) Connections(ctx context.Context) ([]v1.ConnectionView, error) {
	var out v1.ConnectionsResponse
	err := c.do(ctx, http.MethodGet, "/connections", nil, &out)
	return out.Connections, err
}

// FailedLogins lists rejected checks
func (c *Client) FailedLogins(ctx context.Context) ([]domain.FailedLogin, error) {
	var out v1.FailedLoginsResponse
	err := c.do(ctx, http.MethodGet, "/failed-logins", nil, &out)
	return out.FailedLogins, err
}

// Attempts lists up to limit logged attempts; 0 uses the server default
func (c *Client) Attempts(ctx context.Context, limit int) ([]domain.Attempt, error) {
	path := "/attempts"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out v1.AttemptsResponse
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Attempts, err
}

// do sends body (if any) and decodes a 2xx response into out. Non-2xx
// responses are decoded as problem details and returned as errors.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.NewProtocolError("failed to encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.NewTransportError("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "licensectl/"+contracts.Version)
	req.Header.Set(middleware.AdminTokenHeader, c.token)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.NewTransportError("license server unreachable", err).WithContext("path", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return apperrors.NewTransportError("failed to read response", err).WithContext("path", path)
	}

	c.logger.DebugContext(ctx, "admin request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeProblem(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.NewProtocolError("malformed admin response", err).WithContext("path", path)
	}
	return nil
}

func decodeProblem(status int, data []byte) error {
	var problem apperrors.ProblemDetails
	if err := json.Unmarshal(data, &problem); err != nil || problem.Title == "" {
		return apperrors.NewProtocolError(fmt.Sprintf("admin request failed with status %d", status), nil).
			WithContext("status", status)
	}
	if problem.Status == 0 {
		problem.Status = status
	}
	return &problem
}
