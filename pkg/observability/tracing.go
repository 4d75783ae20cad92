package observability

import (
	"go.opentelemetry.io/otel/attribute"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// NewTracerProvider creates a new tracer provider
func NewTracerProvider(
	serviceName string,
	serviceVersion string,
	environment string,
	config TracingConfig,
	exporters *ExporterManager,
) (*sdktrace.TracerProvider, error) {
	resource, err := sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
			attribute.String("environment", environment),
		),
	)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.ParentBased(
		sdktrace.TraceIDRatioBased(config.SamplingRate),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource),
	}
	if exporters != nil {
		for _, exporter := range exporters.GetTraceExporters() {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	return sdktrace.NewTracerProvider(opts...), nil
}
