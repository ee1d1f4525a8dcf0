// Package otel wires OpenTelemetry for volume-patrol.
//
// Traces (one span per provider reload) and mixer counters are exported to
// an OTLP HTTP endpoint taken from the config file or the standard
// OTEL_EXPORTER_OTLP_ENDPOINT / OTEL_EXPORTER_OTLP_HEADERS variables. With
// no endpoint every instrument is a no-op.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "volume-patrol"
	exportInterval = 15 * time.Second
)

// Version is set by the caller (from the linker-injected cmd.Version).
var Version = "dev"

// OTELConfig holds the configuration needed by Init.
type OTELConfig struct {
	Endpoint string // OTLP base URL, e.g. "http://localhost:4318"
	Headers  string // comma-separated key=value pairs
	Provider string // audio backend name, recorded on the resource

	// Interval between metric exports. Zero means 15s.
	Interval time.Duration
}

// Telemetry holds the OTEL providers and metric instruments.
type Telemetry struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	Tracer  trace.Tracer
	Metrics *Metrics
}

// parseHeaders parses the OTEL_EXPORTER_OTLP_HEADERS format. Pairs without
// a key are skipped.
func parseHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers
}

// endpoint splits an OTLP base URL into the exporter options for traces and
// metrics. The exporters take host:port only; the base path is prefixed to
// /v1/traces and /v1/metrics.
func endpoint(cfg OTELConfig) ([]otlptracehttp.Option, []otlpmetrichttp.Option, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid endpoint URL %q: %w", cfg.Endpoint, err)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("invalid endpoint URL %q: no host", cfg.Endpoint)
	}
	base := strings.TrimRight(u.Path, "/")

	traces := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(u.Host),
		otlptracehttp.WithURLPath(base + "/v1/traces"),
	}
	metrics := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(u.Host),
		otlpmetrichttp.WithURLPath(base + "/v1/metrics"),
	}
	if u.Scheme == "http" {
		traces = append(traces, otlptracehttp.WithInsecure())
		metrics = append(metrics, otlpmetrichttp.WithInsecure())
	}
	if headers := parseHeaders(cfg.Headers); len(headers) > 0 {
		traces = append(traces, otlptracehttp.WithHeaders(headers))
		metrics = append(metrics, otlpmetrichttp.WithHeaders(headers))
	}
	return traces, metrics, nil
}

// Init initializes OTEL with OTLP HTTP exporters. With an empty endpoint the
// returned Telemetry exports nothing but its tracer and counters still work.
func Init(ctx context.Context, cfg OTELConfig) (*Telemetry, error) {
	t := &Telemetry{}
	if cfg.Endpoint != "" {
		res, err := resource.New(ctx,
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(Version),
				attribute.String("audio.provider", cfg.Provider),
			),
			resource.WithHost(),
		)
		if err != nil {
			return nil, fmt.Errorf("otel resource: %w", err)
		}
		traceOpts, metricOpts, err := endpoint(cfg)
		if err != nil {
			return nil, fmt.Errorf("otel: %w", err)
		}

		traceExp, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("otel trace exporter: %w", err)
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			_ = traceExp.Shutdown(ctx)
			return nil, fmt.Errorf("otel metric exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = exportInterval
		}
		t.tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)
		t.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(interval))),
			sdkmetric.WithResource(res),
		)
		otel.SetTracerProvider(t.tp)
		otel.SetMeterProvider(t.mp)
	}

	t.Tracer = otel.Tracer(serviceName)
	metrics, err := NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("otel metrics: %w", err)
	}
	t.Metrics = metrics
	return t, nil
}

// Enabled reports whether anything is exported.
func (t *Telemetry) Enabled() bool { return t.tp != nil }

// Shutdown flushes and shuts down all OTEL providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
