package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// ExporterManager manages all exporters
type ExporterManager struct {
	config         ExporterConfig
	traceExporters []sdktrace.SpanExporter
	metricReaders  []sdkmetric.Reader
	mu             sync.RWMutex
}

// NewExporterManager creates a new exporter manager
func NewExporterManager(config ExporterConfig) (*ExporterManager, error) {
	em := &ExporterManager{
		config:         config,
		traceExporters: make([]sdktrace.SpanExporter, 0),
		metricReaders:  make([]sdkmetric.Reader, 0),
	}

	if err := em.initTraceExporters(); err != nil {
		return nil, fmt.Errorf("failed to initialize trace exporters: %w", err)
	}
	if err := em.initMetricExporters(); err != nil {
		return nil, fmt.Errorf("failed to initialize metric exporters: %w", err)
	}
	return em, nil
}

// initTraceExporters initializes trace exporters
func (em *ExporterManager) initTraceExporters() error {
	if em.config.OTLP.Enabled {
		exporter, err := em.createOTLPTraceExporter()
		if err != nil {
			return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		em.traceExporters = append(em.traceExporters, exporter)
	}

	if em.config.Stdout.Enabled {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout trace exporter: %w", err)
		}
		em.traceExporters = append(em.traceExporters, exporter)
	}
	return nil
}

// initMetricExporters initializes metric exporters
func (em *ExporterManager) initMetricExporters() error {
	if em.config.Prometheus.Enabled {
		reader, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create Prometheus reader: %w", err)
		}
		em.metricReaders = append(em.metricReaders, reader)
	}

	if em.config.OTLP.Enabled {
		reader, err := em.createOTLPMetricReader()
		if err != nil {
			return fmt.Errorf("failed to create OTLP metric reader: %w", err)
		}
		em.metricReaders = append(em.metricReaders, reader)
	}
	return nil
}

// createOTLPTraceExporter creates an OTLP trace exporter
func (em *ExporterManager) createOTLPTraceExporter() (sdktrace.SpanExporter, error) {
	ctx := context.Background()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(em.config.OTLP.Endpoint),
		otlptracegrpc.WithTimeout(30 * time.Second),
	}
	if em.config.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// createOTLPMetricReader creates an OTLP metric reader
func (em *ExporterManager) createOTLPMetricReader() (sdkmetric.Reader, error) {
	ctx := context.Background()

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(em.config.OTLP.Endpoint),
		otlpmetricgrpc.WithTimeout(30 * time.Second),
	}
	if em.config.OTLP.Insecure {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(insecure.NewCredentials()))
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(exporter), nil
}

// GetTraceExporters returns the configured trace exporters
func (em *ExporterManager) GetTraceExporters() []sdktrace.SpanExporter {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.traceExporters
}

// GetMetricReaders returns the configured metric readers
func (em *ExporterManager) GetMetricReaders() []sdkmetric.Reader {
	em.mu.RLock()
	defer em.mu.RUnlock()
	return em.metricReaders
}
