package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name used for gateway spans.
const TracerName = "github.com/ai-gateway/chat-gateway"

// Attribute keys attached to gateway spans.
const (
	AttrOperation = attribute.Key("chatgw.operation")
	AttrProvider  = attribute.Key("chatgw.provider")
	AttrChatID    = attribute.Key("chatgw.chat_id")
	AttrFragments = attribute.Key("chatgw.stream.fragments")
)

// Setup installs a global tracer provider exporting to url over OTLP/HTTP.
// An empty url installs nothing and returns a nil provider.
func Setup(ctx context.Context, url, version string) (*sdktrace.TracerProvider, error) {
	if url == "" {
		return nil, nil
	}
	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(url))
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("chat-gateway"),
		semconv.ServiceVersionKey.String(version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the gateway tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
