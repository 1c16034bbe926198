package otelx

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects how spans leave the process. Exporter is "otlp" or "none".
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Exporter       string
	Endpoint       string
	Insecure       bool
	SampleRatio    float64
}

// ConfigFromEnv reads the standard OTEL_* variables. OTEL_ENABLED=false is kept as a
// shorthand for OTEL_TRACES_EXPORTER=none.
func ConfigFromEnv(serviceName string) Config {
	exporter := strings.ToLower(config.String("OTEL_TRACES_EXPORTER", "otlp"))
	if !config.Bool("OTEL_ENABLED", true) {
		exporter = "none"
	}
	return Config{
		ServiceName:    serviceName,
		ServiceVersion: config.String("SERVICE_VERSION", "dev"),
		Environment:    config.String("APP_ENV", "local"),
		Exporter:       exporter,
		Endpoint:       strings.TrimPrefix(strings.TrimPrefix(config.String("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317"), "http://"), "https://"),
		Insecure:       config.Bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		SampleRatio:    sampleRatio(config.String("OTEL_SAMPLING_RATIO", "1")),
	}
}

func sampleRatio(raw string) float64 {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return 1
	}
	return f
}

func (c Config) sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// Setup installs the W3C propagators and, unless the exporter is "none", a batching
// tracer provider. The returned func flushes pending spans.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if cfg.Exporter == "none" {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(3 * time.Second),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Bootstrap runs Setup from the environment and returns a shutdown func that is always
// safe to defer. A setup failure is logged and the service runs untraced.
func Bootstrap(ctx context.Context, logger *slog.Logger, service string) func() {
	cfg := ConfigFromEnv(service)
	shutdown, err := Setup(ctx, cfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		return func() {}
	}
	logger.Debug("tracing configured", "exporter", cfg.Exporter, "endpoint", cfg.Endpoint, "sample_ratio", cfg.SampleRatio)
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("otel shutdown failed", "err", err)
		}
	}
}
