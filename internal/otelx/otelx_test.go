package otelx

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInit_Disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{Enabled: false, Endpoint: "ignored:4317"})
	if err != nil {
		t.Fatalf("Init disabled: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("TracerProvider type = %T, want *sdktrace.TracerProvider", otel.GetTracerProvider())
	}

	fields := map[string]bool{}
	for _, f := range otel.GetTextMapPropagator().Fields() {
		fields[f] = true
	}
	if !fields["traceparent"] || !fields["baggage"] {
		t.Fatalf("propagator fields = %v, want traceparent and baggage", fields)
	}
}

func TestInit_Disabled_TracerProducesNonRecordingSpans(t *testing.T) {
	_, _ = Init(context.Background(), Options{})
	_, span := otel.Tracer("jangle/test").Start(context.Background(), "op")
	defer span.End()
	if span.IsRecording() {
		t.Fatal("span should not record without an exporter")
	}
	if !span.SpanContext().IsValid() {
		t.Fatal("disabled tracing should still mint trace ids")
	}
}

func TestInit_Enabled_RequiresEndpoint(t *testing.T) {
	if _, err := Init(context.Background(), Options{Enabled: true}); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

// the grpc exporter connects lazily, so an unreachable endpoint still
// returns promptly with a working shutdown
func TestInit_Enabled_ReturnsPromptly(t *testing.T) {
	start := time.Now()
	shutdown, err := Init(context.Background(), Options{
		Enabled:    true,
		Endpoint:   "127.0.0.1:1",
		Insecure:   true,
		Sample:     2,
		Service:    "jangle-cms",
		Component:  "server",
		Version:    "test",
		Attributes: map[string]string{"jangle.prefix": "/admin"},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("Init blocked too long")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = shutdown(ctx)

	// restore a quiet provider for other tests
	_, _ = Init(context.Background(), Options{})
}

func TestOptions_ServiceName(t *testing.T) {
	if got := (Options{Service: "jangle-cms", Component: "server"}).ServiceName(); got != "jangle-cms.server" {
		t.Errorf("ServiceName = %q", got)
	}
	if got := (Options{Service: "jangle-cms"}).ServiceName(); got != "jangle-cms" {
		t.Errorf("ServiceName = %q", got)
	}
}
