package license

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/infrastructure"
	"github.com/ernyzasxash/clientt/pkg/contracts"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// License server endpoints
const (
	CheckPath     = "/check"
	HeartbeatPath = "/heartbeat"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 64 << 10

// Server is the remote license authority
type Server interface {
	Check(ctx context.Context, req domain.VerificationRequest) (domain.CheckResponse, error)
	Heartbeat(ctx context.Context, req domain.HeartbeatRequest) error
}

// HTTPClient talks to the license server over HTTP/JSON
type HTTPClient struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewHTTPClient creates a client for the server at baseURL. httpClient may
// be nil, in which case a client with timeout is created.
func NewHTTPClient(baseURL string, httpClient *http.Client, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
		tracer:  otel.Tracer(infrastructure.InstrumentationName),
		logger:  logger.With(slog.String("component", "license_client")),
	}
}

// Check posts a verification request. A response whose body cannot be
// decoded, or lacks a result, is a protocol error regardless of status.
func (c *HTTPClient) Check(ctx context.Context, req domain.VerificationRequest) (domain.CheckResponse, error) {
	ctx, span := c.tracer.Start(ctx, "license.client.check")
	defer span.End()

	var out domain.CheckResponse

	status, body, err := c.post(ctx, CheckPath, req)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return out, err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err := json.Unmarshal(body, &out); err != nil {
		perr := apperrors.NewProtocolError("malformed check response", err).WithContext("status", status)
		infrastructure.RecordError(ctx, perr)
		return domain.CheckResponse{}, perr
	}

	if out.Result == "" {
		perr := apperrors.NewProtocolError("check response has no result", nil).WithContext("status", status)
		infrastructure.RecordError(ctx, perr)
		return domain.CheckResponse{}, perr
	}

	span.SetAttributes(attribute.String("license.result", out.Result))
	c.logger.DebugContext(ctx, "check response received",
		slog.Int("status", status),
		slog.String("result", out.Result))

	return out, nil
}

// Heartbeat posts a heartbeat. Any 2xx status is success; 401 and 403 are
// rejections, everything else a protocol error.
func (c *HTTPClient) Heartbeat(ctx context.Context, req domain.HeartbeatRequest) error {
	ctx, span := c.tracer.Start(ctx, "license.client.heartbeat")
	defer span.End()

	status, body, err := c.post(ctx, HeartbeatPath, req)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", status))

	if status >= 200 && status < 300 {
		return nil
	}

	var failure error
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		var resp domain.CheckResponse
		_ = json.Unmarshal(body, &resp)
		failure = apperrors.NewRejectionError(resp.Result, apperrors.ErrHeartbeatFailed)
	} else {
		failure = apperrors.NewProtocolError(fmt.Sprintf("heartbeat returned status %d", status), apperrors.ErrHeartbeatFailed)
	}
	infrastructure.RecordError(ctx, failure)
	return failure
}

// post sends v as JSON and returns the status and (bounded) body.
// Transport level failures come back as TRANSPORT errors.
func (c *HTTPClient) post(ctx context.Context, path string, v interface{}) (int, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, apperrors.NewProtocolError("failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, apperrors.NewTransportError("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "cs16client/"+contracts.Version)
	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		req.Header.Set("X-Request-ID", traceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		msg := "license server unreachable"
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			msg = "license server timed out"
		}
		return 0, nil, apperrors.NewTransportError(msg, err).WithContext("path", path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, apperrors.NewTransportError("failed to read response", err).WithContext("path", path)
	}

	return resp.StatusCode, body, nil
}
