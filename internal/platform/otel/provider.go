// Package otel configures OpenTelemetry tracing for taskworker processes.
package otel

import (
	"context"
	"fmt"

	"github.com/louisbranch/taskworker/internal/platform/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Settings are the tracing environment knobs.
type Settings struct {
	Enabled     bool    `env:"TASKWORKER_OTEL_ENABLED" envDefault:"true"`
	Endpoint    string  `env:"TASKWORKER_OTEL_ENDPOINT"`
	SampleRatio float64 `env:"TASKWORKER_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// Setup initialises OpenTelemetry tracing for the given service.
//
// Tracing is opt-in: when TASKWORKER_OTEL_ENDPOINT is empty or
// TASKWORKER_OTEL_ENABLED is false, Setup returns a no-op shutdown
// function and no global provider is registered. The trace-context
// propagator is installed either way so activation headers keep flowing
// between producers and workers.
func Setup(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	var settings Settings
	if err := config.ParseEnv(&settings); err != nil {
		return noop, err
	}
	return SetupWith(ctx, serviceName, settings)
}

// SetupWith is Setup with explicit settings.
func SetupWith(ctx context.Context, serviceName string, settings Settings) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !settings.Enabled || settings.Endpoint == "" {
		return noop, nil
	}
	if settings.SampleRatio < 0 || settings.SampleRatio > 1 {
		return noop, fmt.Errorf("otel sample ratio %v is outside [0, 1]", settings.SampleRatio)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(settings.Endpoint),
	)
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(settings.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func noop(context.Context) error { return nil }
