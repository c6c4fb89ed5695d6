// Package telemetry provides OpenTelemetry instrumentation for Warden.
package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yairfalse/warden/internal/check"
	"github.com/yairfalse/warden/internal/config"
	"github.com/yairfalse/warden/internal/scheduler"
)

// Provider wraps OTEL tracer and meter providers.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *promclient.Registry
	tracer         trace.Tracer
	meter          metric.Meter

	// Metrics
	checkDuration      metric.Float64Histogram
	checkFailures      metric.Int64Counter
	populationDuration metric.Float64Histogram
	resourcesListed    metric.Int64Counter
	populationErrors   metric.Int64Counter
}

// NewProvider creates a new telemetry provider. Metrics are always readable
// through Registry; OTLP export is enabled by cfg.
func NewProvider(ctx context.Context, cfg config.OTELConfig) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	p := &Provider{}

	if err := p.setupTracing(ctx, cfg, res); err != nil {
		return nil, err
	}

	if err := p.setupMetrics(ctx, cfg, res); err != nil {
		_ = p.tracerProvider.Shutdown(ctx)
		return nil, err
	}

	if err := p.initMetrics(); err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}

	if cfg.Traces.Enabled && cfg.Endpoint != "" {
		exp, err := createTraceExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create trace exporter: %w", err)
		}
		sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Traces.SampleRate))
		opts = append(opts, sdktrace.WithBatcher(exp), sdktrace.WithSampler(sampler))
	}

	p.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	p.tracer = p.tracerProvider.Tracer("warden")

	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, cfg config.OTELConfig, res *resource.Resource) error {
	p.registry = promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(p.registry))
	if err != nil {
		return fmt.Errorf("create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}

	if cfg.Metrics.Enabled && cfg.Endpoint != "" {
		exp, err := createMetricExporter(ctx, cfg)
		if err != nil {
			return fmt.Errorf("create metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp,
			sdkmetric.WithInterval(30*time.Second),
		)))
	}

	p.meterProvider = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.meterProvider)
	p.meter = p.meterProvider.Meter("warden")

	return nil
}

// transportCredentials picks plaintext, a private CA or the system roots.
func transportCredentials(cfg config.OTELConfig) (credentials.TransportCredentials, error) {
	if cfg.Insecure {
		return insecure.NewCredentials(), nil
	}
	if cfg.CAFile != "" {
		creds, err := credentials.NewClientTLSFromFile(cfg.CAFile, "")
		if err != nil {
			return nil, fmt.Errorf("load ca file: %w", err)
		}
		return creds, nil
	}
	return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}), nil
}

func createTraceExporter(ctx context.Context, cfg config.OTELConfig) (sdktrace.SpanExporter, error) {
	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}
	return otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
	)
}

func createMetricExporter(ctx context.Context, cfg config.OTELConfig) (sdkmetric.Exporter, error) {
	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}
	return otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(creds)),
	)
}

func (p *Provider) initMetrics() error {
	var err error

	p.checkDuration, err = p.meter.Float64Histogram(
		"warden_check_duration_seconds",
		metric.WithDescription("Duration of individual check executions"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create check_duration: %w", err)
	}

	p.checkFailures, err = p.meter.Int64Counter(
		"warden_check_failures_total",
		metric.WithDescription("Checks that ended without a verdict"),
	)
	if err != nil {
		return fmt.Errorf("create check_failures: %w", err)
	}

	p.populationDuration, err = p.meter.Float64Histogram(
		"warden_inventory_population_seconds",
		metric.WithDescription("Duration of per-service inventory enumeration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create population_duration: %w", err)
	}

	p.resourcesListed, err = p.meter.Int64Counter(
		"warden_resources_listed_total",
		metric.WithDescription("Total resources enumerated from providers"),
	)
	if err != nil {
		return fmt.Errorf("create resources_listed: %w", err)
	}

	p.populationErrors, err = p.meter.Int64Counter(
		"warden_inventory_errors_total",
		metric.WithDescription("Services whose inventory could not be enumerated"),
	)
	if err != nil {
		return fmt.Errorf("create population_errors: %w", err)
	}

	return nil
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	return p.meter
}

// Registry returns the Prometheus registry backing the metrics endpoint.
func (p *Provider) Registry() *promclient.Registry {
	return p.registry
}

// CheckFinished records one finished check.
func (p *Provider) CheckFinished(ctx context.Context, md check.Metadata, r scheduler.Result) {
	attrs := metric.WithAttributes(
		attribute.String("check", md.ID),
		attribute.String("service", md.Service),
		attribute.String("state", string(r.State)),
	)
	p.checkDuration.Record(ctx, r.Duration.Seconds(), attrs)
	if r.State == scheduler.StateFailed {
		p.checkFailures.Add(ctx, 1, attrs)
	}
}

// ServicePopulated records one inventory enumeration.
func (p *Provider) ServicePopulated(ctx context.Context, service string, count int, d time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("service", service))
	p.populationDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		p.populationErrors.Add(ctx, 1, attrs)
		return
	}
	p.resourcesListed.Add(ctx, int64(count), attrs)
}

// Shutdown flushes and shuts down the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer: %w", err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter: %w", err)
		}
	}
	return nil
}
