// Package tracing provides OpenTelemetry tracing for the analyst service.
package tracing

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/flexinfer/mentatlab/services/analyst-go"

	// ServiceName is the service.name resource attribute.
	ServiceName = "mentatlab-analyst"

	exportTimeout = 5 * time.Second
)

// Resource attribute keys describing the crew deployment.
const (
	RoleKey            = attribute.Key("analyst.role")
	MockModeKey        = attribute.Key("analyst.mock_mode")
	ManagerModelKey    = attribute.Key("analyst.manager_model")
	SpecialistModelKey = attribute.Key("analyst.specialist_model")
)

// Config selects the collector and describes the deployment on every span.
type Config struct {
	Enabled bool

	// Endpoint is "host:port" for plaintext gRPC, or a full URL
	Endpoint string

	// SampleRate is the root sampling ratio; parents decide for child spans
	SampleRate float64

	Version         string
	Role            string
	MockMode        bool
	ManagerModel    string
	SpecialistModel string
}

// Provider owns the SDK tracer provider, if tracing is enabled.
type Provider struct {
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// Init installs the global tracer provider and W3C propagators. With a nil
// or disabled config the global no-op provider stays in place.
func Init(ctx context.Context, cfg *Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil || !cfg.Enabled {
		logger.Info("tracing disabled")
		return &Provider{logger: logger}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOptions(cfg.Endpoint)...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(newSampler(cfg.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("tracing initialized",
		"endpoint", cfg.Endpoint,
		"sample_rate", cfg.SampleRate,
		"role", cfg.Role,
	)
	return &Provider{provider: tp, logger: logger}, nil
}

func exporterOptions(endpoint string) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithTimeout(exportTimeout)}
	if strings.Contains(endpoint, "://") {
		return append(opts, otlptracegrpc.WithEndpointURL(endpoint))
	}
	return append(opts, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
}

// newResource describes this process and the crew it drives.
func newResource(cfg *Config) *resource.Resource {
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(cmp.Or(cfg.Version, "dev")),
		RoleKey.String(cfg.Role),
		MockModeKey.Bool(cfg.MockMode),
		ManagerModelKey.String(cfg.ManagerModel),
		SpecialistModelKey.String(cfg.SpecialistModel),
	)
}

// newSampler samples root spans at rate and follows the parent otherwise.
func newSampler(rate float64) sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case rate >= 1:
		root = sdktrace.AlwaysSample()
	case rate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(rate)
	}
	return sdktrace.ParentBased(root)
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	p.logger.Info("flushing traces")
	return p.provider.Shutdown(ctx)
}

// Tracer returns the service tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Middleware wraps an HTTP handler with server spans. It is a pass-through
// when enabled is false.
func Middleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return otelhttp.NewHandler(next, "analyst",
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
	}
}

// Transport wraps base with client spans.
func Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base)
}
