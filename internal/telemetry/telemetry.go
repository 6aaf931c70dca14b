package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName names the tracer, meter and OTEL resource.
const ServiceName = "parley"

// Version is reported as the service version.
const Version = "0.1.0"

const (
	metricInterval  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

func rotatingFile(dir, name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, name),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// InitLogger initializes structured logging with rotation. The console stays
// reserved for the conversation; logs only go to <dir>/parley.log.
func InitLogger(dir string, verbose bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file := rotatingFile(dir, "parley.log")
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, file, nil
}

// InitTelemetry sets the global tracer and meter providers. Spans go to
// <dir>/parley_traces.log and metrics to <dir>/parley_metrics.log every
// metricInterval. The returned func flushes both and closes the files.
func InitTelemetry(ctx context.Context, dir string) (trace.Tracer, metric.Meter, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(Version),
	))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	spans, metrics := rotatingFile(dir, "parley_traces.log"), rotatingFile(dir, "parley_metrics.log")
	closeFiles := func() error { return errors.Join(spans.Close(), metrics.Close()) }

	spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(spans))
	if err != nil {
		closeFiles()
		return nil, nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metrics))
	if err != nil {
		closeFiles()
		return nil, nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(spanExporter), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx), closeFiles()); err != nil {
			slog.Error("telemetry shutdown", "error", err)
		}
	}
	return tp.Tracer(ServiceName), mp.Meter(ServiceName), shutdown, nil
}

// Noop returns the global (no-op unless configured) tracer and meter.
func Noop() (trace.Tracer, metric.Meter) {
	return otel.Tracer(ServiceName), otel.Meter(ServiceName)
}
