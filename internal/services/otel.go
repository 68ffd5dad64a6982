package services

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ernyzasxash/clientt/internal/infrastructure"
)

// ServerMetrics holds the license server's business instruments
type ServerMetrics struct {
	Checks       metric.Int64Counter
	Heartbeats   metric.Int64Counter
	AdminChanges metric.Int64Counter
}

// NewServerMetrics creates the instruments on meter. A nil meter uses the
// global meter provider.
func NewServerMetrics(meter metric.Meter) (*ServerMetrics, error) {
	if meter == nil {
		meter = otel.Meter(infrastructure.InstrumentationName)
	}

	m := &ServerMetrics{}
	var err error

	m.Checks, err = meter.Int64Counter(
		"license_server_checks_total",
		metric.WithDescription("License checks by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create checks counter: %w", err)
	}

	m.Heartbeats, err = meter.Int64Counter(
		"license_server_heartbeats_total",
		metric.WithDescription("Heartbeats received by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create heartbeats counter: %w", err)
	}

	m.AdminChanges, err = meter.Int64Counter(
		"license_server_admin_changes_total",
		metric.WithDescription("Key and ban list changes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin changes counter: %w", err)
	}

	return m, nil
}

func (m *ServerMetrics) check(ctx context.Context, result string) {
	if m != nil {
		m.Checks.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (m *ServerMetrics) heartbeat(ctx context.Context, result string) {
	if m != nil {
		m.Heartbeats.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (m *ServerMetrics) adminChange(ctx context.Context, action, result string) {
	if m != nil {
		m.AdminChanges.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("result", result),
		))
	}
}
