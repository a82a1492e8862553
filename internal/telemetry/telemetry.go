// Package telemetry provides OpenTelemetry setup for a generation run.
//
// lorrigen exits as soon as the build step is done, so nothing scrapes it.
// Metrics are either pushed over OTLP or, for CI hosts running the node
// exporter, written once to a Prometheus textfile at shutdown.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"

	"github.com/terrpan/lorrigen/internal/buildinfo"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	// Enabled controls whether OTLP push (traces + metrics) is active.
	Enabled bool

	// Endpoint is the OTLP HTTP endpoint (e.g. "localhost:4318").
	// If empty, falls back to OTEL_EXPORTER_OTLP_ENDPOINT env var.
	Endpoint string

	// Insecure enables plain HTTP (no TLS) for OTLP export.
	Insecure bool

	// StdOut prints traces and metrics for debugging. They go to
	// StdOutWriter, never to the directive stream.
	StdOut       bool
	StdOutWriter io.Writer

	// Textfile, when set, receives all metrics in the Prometheus text
	// format at shutdown.
	Textfile string
}

// Setup configures the OpenTelemetry SDK and returns a shutdown function
// that flushes every exporter. Call it once per run and defer the shutdown.
//
// Providers are only installed when something consumes them; with the zero
// Config the global no-op providers stay in place.
func Setup(
	ctx context.Context,
	serviceName string,
	cfg Config,
) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// Composite shutdown function that calls all registered cleanup functions.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	handleErr := func(inErr error) {
		err = errors.Join(inErr, shutdown(ctx))
	}

	tracing := cfg.Enabled || cfg.StdOut
	metering := tracing || cfg.Textfile != ""
	if !metering {
		return
	}

	res, err := newResource(serviceName)
	if err != nil {
		handleErr(err)
		return
	}

	if tracing {
		tracerProvider, tErr := newTraceProvider(ctx, res, cfg)
		if tErr != nil {
			handleErr(tErr)
			return
		}
		shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
		otel.SetTracerProvider(tracerProvider)
	}

	if metering {
		meterProvider, registry, mErr := newMeterProvider(ctx, res, cfg)
		if mErr != nil {
			handleErr(mErr)
			return
		}
		// Flush the provider first so the textfile sees final values.
		shutdownFuncs = append(shutdownFuncs, func(ctx context.Context) error {
			err := meterProvider.Shutdown(ctx)
			if registry != nil {
				if wErr := prometheus.WriteToTextfile(cfg.Textfile, registry); wErr != nil {
					err = errors.Join(err, fmt.Errorf("writing metrics textfile %s: %w", cfg.Textfile, wErr))
				}
			}
			return err
		})
		otel.SetMeterProvider(meterProvider)
	}

	return
}

// newResource describes this process. The semconv schema must match the
// one resource.Default uses, or the merge fails.
func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(buildinfo.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}
	return res, nil
}

func newTraceProvider(ctx context.Context, res *resource.Resource, cfg Config) (*trace.TracerProvider, error) {
	var exporters []trace.SpanExporter

	if cfg.Enabled {
		opts := []otlptracehttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		traceExporter, err := otlptracehttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, traceExporter)
	}

	if cfg.StdOut {
		opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
		if cfg.StdOutWriter != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.StdOutWriter))
		}
		stdoutExporter, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, err
		}
		exporters = append(exporters, stdoutExporter)
	}

	// A run lasts seconds; export synchronously so nothing is lost on exit.
	providerOpts := []trace.TracerProviderOption{
		trace.WithResource(res),
	}
	for _, exp := range exporters {
		providerOpts = append(providerOpts, trace.WithSyncer(exp))
	}

	return trace.NewTracerProvider(providerOpts...), nil
}

// newMeterProvider also returns the registry backing the Prometheus reader,
// or nil when no textfile is configured.
func newMeterProvider(ctx context.Context, res *resource.Resource, cfg Config) (*metric.MeterProvider, *prometheus.Registry, error) {
	var readers []metric.Reader

	if cfg.Enabled {
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		metricExporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		readers = append(readers, metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(10*time.Second)))
	}

	if cfg.StdOut {
		opts := []stdoutmetric.Option{}
		if cfg.StdOutWriter != nil {
			opts = append(opts, stdoutmetric.WithWriter(cfg.StdOutWriter))
		}
		stdoutExporter, err := stdoutmetric.New(opts...)
		if err != nil {
			return nil, nil, err
		}
		readers = append(readers, metric.NewPeriodicReader(stdoutExporter,
			metric.WithInterval(10*time.Second)))
	}

	var registry *prometheus.Registry
	if cfg.Textfile != "" {
		registry = prometheus.NewRegistry()
		promExp, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		readers = append(readers, promExp)
	}

	providerOpts := []metric.Option{
		metric.WithResource(res),
	}
	for _, reader := range readers {
		providerOpts = append(providerOpts, metric.WithReader(reader))
	}

	return metric.NewMeterProvider(providerOpts...), registry, nil
}
