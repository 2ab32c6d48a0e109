package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/routing-simulator/internal/logging"
)

const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	defaultServiceName  = "routesim"
	defaultOTLPEndpoint = "localhost:4317"
	shutdownTimeout     = 5 * time.Second
)

// TracingConfig selects the span exporter and sampling rate.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string  // ExporterStdout or ExporterOTLP
	Endpoint    string  // OTLP gRPC collector address
	SampleRatio float64 // fraction of root spans kept, in [0, 1]

	// Writer receives stdout exporter output; nil means os.Stdout.
	Writer io.Writer
}

// TracingConfigFromEnv reads the ROUTESIM_TRACING_* and ROUTESIM_OTLP_ENDPOINT
// variables.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfigFromLookup(os.LookupEnv)
}

// TracingConfigFromLookup builds a TracingConfig from lookup. Unset values
// fall back to a disabled stdout exporter sampling everything; a sample
// ratio outside [0, 1] is ignored.
func TracingConfigFromLookup(lookup func(string) (string, bool)) TracingConfig {
	cfg := TracingConfig{
		ServiceName: defaultServiceName,
		Exporter:    ExporterStdout,
		SampleRatio: 1,
	}
	env := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg.Enabled, _ = strconv.ParseBool(env("ROUTESIM_TRACING_ENABLED"))
	if v := env("ROUTESIM_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	if v := env("ROUTESIM_TRACING_SERVICE_NAME"); v != "" {
		cfg.ServiceName = v
	}
	if v, err := strconv.ParseFloat(env("ROUTESIM_TRACING_SAMPLE_RATIO"), 64); err == nil && v >= 0 && v <= 1 {
		cfg.SampleRatio = v
	}
	cfg.Endpoint = env("ROUTESIM_OTLP_ENDPOINT")
	return cfg
}

// InitTracing installs the global tracer provider and propagator described
// by cfg and returns the function that flushes and stops it. When tracing is
// disabled a noop provider is installed and shutdown does nothing.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newTracerProvider(ctx context.Context, cfg TracingConfig) (*sdktrace.TracerProvider, error) {
	exp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(name),
		semconv.ServiceNamespace(defaultServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case ExporterStdout, "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())

	case ExporterOTLP, "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))

	default:
		return nil, fmt.Errorf("tracing exporter %q: want %s or %s", cfg.Exporter, ExporterStdout, ExporterOTLP)
	}
}

// ShutdownWithTimeout runs shutdown with a bounded deadline and logs, rather
// than returns, any failure.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown", logging.Err(err))
	}
}
