package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Manager manages observability for the gatekeepr daemon
type Manager struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	metricsManager *MetricsManager
	exporters      *ExporterManager
	mu             sync.RWMutex
	shutdownFuncs  []func(context.Context) error
}

// Config holds observability configuration
type Config struct {
	ServiceName    string         `yaml:"service_name"`
	ServiceVersion string         `yaml:"service_version"`
	Environment    string         `yaml:"environment"`
	Enabled        bool           `yaml:"enabled"`
	Tracing        TracingConfig  `yaml:"tracing"`
	Metrics        MetricsConfig  `yaml:"metrics"`
	Exporters      ExporterConfig `yaml:"exporters"`
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ExporterConfig holds exporter configuration
type ExporterConfig struct {
	Prometheus PrometheusConfig `yaml:"prometheus"`
	OTLP       OTLPConfig       `yaml:"otlp"`
	Stdout     StdoutConfig     `yaml:"stdout"`
}

// PrometheusConfig holds Prometheus exporter configuration
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// StdoutConfig holds the development stdout trace exporter configuration
type StdoutConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a disabled observability configuration
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "gatekeepr",
		ServiceVersion: "dev",
		Environment:    "production",
		Enabled:        false,
		Tracing:        TracingConfig{SamplingRate: 1.0},
	}
}

// NewManager creates a new observability manager
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}

	mgr := &Manager{
		config:        config,
		shutdownFuncs: make([]func(context.Context) error, 0),
	}

	if !config.Enabled {
		return mgr, nil
	}

	var err error
	mgr.exporters, err = NewExporterManager(config.Exporters)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize exporters: %w", err)
	}

	if config.Tracing.Enabled {
		if err := mgr.initTracing(); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if config.Metrics.Enabled {
		if err := mgr.initMetrics(); err != nil {
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	return mgr, nil
}

// initTracing initializes the tracing provider
func (m *Manager) initTracing() error {
	tp, err := NewTracerProvider(
		m.config.ServiceName,
		m.config.ServiceVersion,
		m.config.Environment,
		m.config.Tracing,
		m.exporters,
	)
	if err != nil {
		return err
	}

	m.tracerProvider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	m.shutdownFuncs = append(m.shutdownFuncs, func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	})
	return nil
}

// initMetrics initializes the metrics manager
func (m *Manager) initMetrics() error {
	metricsManager, err := NewMetricsManager(m.config.ServiceName, m.exporters)
	if err != nil {
		return err
	}

	m.metricsManager = metricsManager
	m.shutdownFuncs = append(m.shutdownFuncs, func(ctx context.Context) error {
		return metricsManager.Shutdown(ctx)
	})
	return nil
}

// Metrics returns the metrics manager, which may be nil when disabled
func (m *Manager) Metrics() *MetricsManager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsManager
}

// Shutdown flushes and stops every observability component
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, fn := range m.shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.shutdownFuncs = nil
	return firstErr
}
