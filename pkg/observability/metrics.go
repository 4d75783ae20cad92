package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsManager manages metrics collection
type MetricsManager struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	// Check metrics
	checkTotal    metric.Int64Counter
	checkDuration metric.Float64Histogram

	// Agent metrics
	agentRoundTripTotal metric.Int64Counter
	parkedChecks        metric.Int64UpDownCounter

	// Connection metrics
	connections metric.Int64UpDownCounter

	// Storage metrics
	storageSaveTotal  metric.Int64Counter
	storageErrorTotal metric.Int64Counter

	// Cache invalidation broadcasts
	invalidationTotal metric.Int64Counter
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(serviceName string, exporters *ExporterManager) (*MetricsManager, error) {
	mm := &MetricsManager{}

	opts := []sdkmetric.Option{}
	if exporters != nil {
		for _, reader := range exporters.GetMetricReaders() {
			opts = append(opts, sdkmetric.WithReader(reader))
		}
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	mm.meterProvider = mp
	mm.meter = mp.Meter(serviceName)

	if err := mm.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return mm, nil
}

// initMetrics initializes all metrics
func (mm *MetricsManager) initMetrics() error {
	var err error

	mm.checkTotal, err = mm.meter.Int64Counter(
		"gatekeepr_check_total",
		metric.WithDescription("Total number of policy checks answered"),
	)
	if err != nil {
		return err
	}

	mm.checkDuration, err = mm.meter.Float64Histogram(
		"gatekeepr_check_duration_seconds",
		metric.WithDescription("Policy check handling duration"),
	)
	if err != nil {
		return err
	}

	mm.agentRoundTripTotal, err = mm.meter.Int64Counter(
		"gatekeepr_agent_roundtrip_total",
		metric.WithDescription("Total number of checks forwarded to agents"),
	)
	if err != nil {
		return err
	}

	mm.parkedChecks, err = mm.meter.Int64UpDownCounter(
		"gatekeepr_parked_checks",
		metric.WithDescription("Checks currently parked on an agent reply"),
	)
	if err != nil {
		return err
	}

	mm.connections, err = mm.meter.Int64UpDownCounter(
		"gatekeepr_connections",
		metric.WithDescription("Open connections by role"),
	)
	if err != nil {
		return err
	}

	mm.storageSaveTotal, err = mm.meter.Int64Counter(
		"gatekeepr_storage_save_total",
		metric.WithDescription("Total number of database persists"),
	)
	if err != nil {
		return err
	}

	mm.storageErrorTotal, err = mm.meter.Int64Counter(
		"gatekeepr_storage_error_total",
		metric.WithDescription("Total number of failed database persists"),
	)
	if err != nil {
		return err
	}

	mm.invalidationTotal, err = mm.meter.Int64Counter(
		"gatekeepr_invalidation_total",
		metric.WithDescription("Total number of client cache invalidation broadcasts"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordCheck records one answered policy check
func (mm *MetricsManager) RecordCheck(result string, duration time.Duration) {
	if mm == nil {
		return
	}
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("result", result))
	mm.checkTotal.Add(ctx, 1, attrs)
	mm.checkDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAgentRoundTrip records a check being forwarded to an agent
func (mm *MetricsManager) RecordAgentRoundTrip(agentType string) {
	if mm == nil {
		return
	}
	mm.agentRoundTripTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("agent", agentType)))
}

// ParkCheck adjusts the parked-check gauge by delta
func (mm *MetricsManager) ParkCheck(delta int64) {
	if mm == nil {
		return
	}
	mm.parkedChecks.Add(context.Background(), delta)
}

// Connection adjusts the connection gauge for a role by delta
func (mm *MetricsManager) Connection(role string, delta int64) {
	if mm == nil {
		return
	}
	mm.connections.Add(context.Background(), delta,
		metric.WithAttributes(attribute.String("role", role)))
}

// RecordStorageSave records one persist attempt
func (mm *MetricsManager) RecordStorageSave(err error) {
	if mm == nil {
		return
	}
	ctx := context.Background()
	mm.storageSaveTotal.Add(ctx, 1)
	if err != nil {
		mm.storageErrorTotal.Add(ctx, 1)
	}
}

// RecordInvalidation records one cache invalidation broadcast
func (mm *MetricsManager) RecordInvalidation() {
	if mm == nil {
		return
	}
	mm.invalidationTotal.Add(context.Background(), 1)
}

// Shutdown stops the meter provider
func (mm *MetricsManager) Shutdown(ctx context.Context) error {
	if mm.meterProvider != nil {
		return mm.meterProvider.Shutdown(ctx)
	}
	return nil
}
