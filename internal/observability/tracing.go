package observability

import (
	"context"
	"fmt"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "oristagram-api"

// Tracer is the global tracer used for the application.
var Tracer trace.Tracer = otel.Tracer(defaultServiceName)

// Operations traced below the HTTP span.
const (
	OpFeedCompose = "feed.compose"
	OpMediaStore  = "media.store"
	OpChatSend    = "chat.send"
)

// TracingConfig holds configuration for initializing the tracer.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
	Exporter       string // "stdout" or "otlp"
	OTLPEndpoint   string
	SamplerRatio   float64
}

// TracingConfigFrom maps the OTEL_* settings. Production samples a tenth of
// root traces, everything else samples all of them.
func TracingConfigFrom(cfg *config.Config, version string) TracingConfig {
	name := cfg.OTelServiceName
	if name == "" {
		name = defaultServiceName
	}
	ratio := 1.0
	if cfg.IsProduction() {
		ratio = 0.1
	}
	return TracingConfig{
		ServiceName:    name,
		ServiceVersion: version,
		Environment:    cfg.Env,
		Enabled:        cfg.OTelEnabled,
		Exporter:       cfg.OTelExporter,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SamplerRatio:   ratio,
	}
}

func newExporter(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if cfg.Exporter == "otlp" {
		return otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitTracing installs the global tracer provider and returns its shutdown func.
// When tracing is disabled the no-op provider stays in place.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if !cfg.Enabled {
		Tracer = otel.Tracer(cfg.ServiceName)
		return func(_ context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing exporter: %w", err)
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SamplerRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	Tracer = tp.Tracer(cfg.ServiceName)
	return tp.Shutdown, nil
}

// UserAttr, RoomAttr and MediaContextAttr name what a span works on.
func UserAttr(id uint) attribute.KeyValue {
	return attribute.Int64("oristagram.user_id", int64(id))
}

func RoomAttr(id uint) attribute.KeyValue {
	return attribute.Int64("oristagram.chatroom_id", int64(id))
}

func MediaContextAttr(mctx string) attribute.KeyValue {
	return attribute.String("oristagram.media_context", mctx)
}

// StartSpan starts an internal span for op. Call the returned func with the
// operation's error (or nil) to end it. Validation failures are not span
// errors, only recorded as an event.
func StartSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := Tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		switch {
		case err == nil:
		case isClientError(err):
			span.AddEvent("rejected", trace.WithAttributes(attribute.String("reason", err.Error())))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func isClientError(err error) bool {
	switch models.ErrorCode(err) {
	case "", models.CodeInternal:
		return false
	}
	return true
}
