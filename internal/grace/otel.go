package grace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "licensecore/grace"

// GraceMetrics holds the grace period metrics
type GraceMetrics struct {
	LevelTransitions metric.Int64Counter
	Transitions      metric.Int64Counter
}

// InitializeGraceMetrics creates the grace period metrics
func InitializeGraceMetrics(meter metric.Meter) (*GraceMetrics, error) {
	m := &GraceMetrics{}
	var err error

	if m.LevelTransitions, err = meter.Int64Counter(
		"license_grace_level_transitions_total",
		metric.WithDescription("Total number of grace warning level changes by level"),
	); err != nil {
		return nil, fmt.Errorf("failed to create level transitions counter: %w", err)
	}

	if m.Transitions, err = meter.Int64Counter(
		"license_connectivity_transitions_total",
		metric.WithDescription("Total number of online/offline transitions"),
	); err != nil {
		return nil, fmt.Errorf("failed to create connectivity transitions counter: %w", err)
	}

	return m, nil
}

func (m *Manager) recordLevel(ctx context.Context, level WarningLevel) {
	if m.metrics != nil {
		m.metrics.LevelTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", string(level))))
	}
}

func (m *Manager) recordTransition(ctx context.Context, to string) {
	if m.metrics != nil {
		m.metrics.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
	}
}
