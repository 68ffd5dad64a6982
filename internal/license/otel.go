package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ernyzasxash/clientt/internal/infrastructure"
)

// Metrics holds the session's OpenTelemetry instruments
type Metrics struct {
	VerifyAttempts   metric.Int64Counter
	VerifyDuration   metric.Float64Histogram
	Heartbeats       metric.Int64Counter
	ActiveHeartbeats metric.Int64UpDownCounter
	KeyWrites        metric.Int64Counter
}

// NewMetrics creates the instruments on meter. A nil meter uses the global
// meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(infrastructure.InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.VerifyAttempts, err = meter.Int64Counter(
		"license_verify_attempts_total",
		metric.WithDescription("License verification attempts by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify attempts counter: %w", err)
	}

	m.VerifyDuration, err = meter.Float64Histogram(
		"license_verify_duration_seconds",
		metric.WithDescription("License verification round trip duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verify duration histogram: %w", err)
	}

	m.Heartbeats, err = meter.Int64Counter(
		"license_heartbeats_total",
		metric.WithDescription("Heartbeats sent by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat counter: %w", err)
	}

	m.ActiveHeartbeats, err = meter.Int64UpDownCounter(
		"license_heartbeat_workers",
		metric.WithDescription("Running heartbeat workers"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeat worker gauge: %w", err)
	}

	m.KeyWrites, err = meter.Int64Counter(
		"license_key_writes_total",
		metric.WithDescription("License key persistence writes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create key write counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordVerify(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.VerifyAttempts.Add(ctx, 1, attrs)
	if elapsed > 0 {
		m.VerifyDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *Metrics) recordHeartbeat(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Heartbeats.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) workerStarted(ctx context.Context) {
	if m != nil {
		m.ActiveHeartbeats.Add(ctx, 1)
	}
}

func (m *Metrics) workerStopped(ctx context.Context) {
	if m != nil {
		m.ActiveHeartbeats.Add(ctx, -1)
	}
}

func (m *Metrics) keyWritten(ctx context.Context, ok bool) {
	if m != nil {
		m.KeyWrites.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
	}
}
