// Package telemetry implements core.Telemetry (spec §9's "inject Clock,
// Logger, Config, ports" applied to observability too) with a real
// OpenTelemetry pipeline, grounded on the teacher's telemetry.OTelProvider
// (telemetry/otel.go): an OTLP/HTTP trace exporter plus SDK-backed metric
// instruments, minus the teacher's HTTP-port auto-conversion and
// module-level global registry (this module injects the provider instead
// of reaching for a package-level singleton, per spec §9).
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/core"
)

// Provider is the production core.Telemetry implementation: traces export
// over OTLP/HTTP, counters/histograms/gauges record into an in-process SDK
// meter (spec's "counters/histograms for SLA breaches, route-cache hit
// rate, reassignment attempts").
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewProvider builds a Provider exporting traces to endpoint (an
// OTLP/HTTP collector address, e.g. "localhost:4318") for serviceName.
func NewProvider(ctx context.Context, serviceName, endpoint string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", "1.0.0"),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: build trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return &Provider{
		tracer:     tp.Tracer(serviceName),
		meter:      mp.Meter(serviceName),
		tp:         tp,
		mp:         mp,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

// NewNoopProvider returns a Provider with no exporters wired — traces and
// metrics flow through the real OTel API (so instrumentation code never
// branches on whether telemetry is enabled) but nothing leaves the
// process. Used for local runs and tests instead of a second exporter
// dependency (SPEC_FULL.md DOMAIN STACK).
func NewNoopProvider(serviceName string) *Provider {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()
	return &Provider{
		tracer:     tp.Tracer(serviceName),
		meter:      mp.Meter(serviceName),
		tp:         tp,
		mp:         mp,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// StartSpan implements core.Telemetry.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric implements core.Telemetry, recording value against a
// lazily-created counter instrument tagged with labels. Spec components
// that need a gauge-shaped reading (e.g. current inflight count) call this
// with the latest absolute value; callers needing true cumulative counts
// should pass deltas.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := attrsFromLabels(labels)

	p.mu.Lock()
	counter, ok := p.counters[name]
	if !ok {
		var err error
		counter, err = p.meter.Float64Counter(name)
		if err == nil {
			p.counters[name] = counter
		}
	}
	p.mu.Unlock()

	if counter != nil {
		counter.Add(context.Background(), value, metric.WithAttributes(attrs...))
	}
}

// RecordHistogram records value (e.g. a latency in ms) into a histogram
// instrument. It is not part of core.Telemetry, and nothing outside this
// package's tests calls it.
func (p *Provider) RecordHistogram(name string, value float64, labels map[string]string) {
	attrs := attrsFromLabels(labels)

	p.mu.Lock()
	hist, ok := p.histograms[name]
	if !ok {
		var err error
		hist, err = p.meter.Float64Histogram(name)
		if err == nil {
			p.histograms[name] = hist
		}
	}
	p.mu.Unlock()

	if hist != nil {
		hist.Record(context.Background(), value, metric.WithAttributes(attrs...))
	}
}

// Shutdown flushes pending spans/metrics and releases exporter resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tp.Shutdown(ctx); err != nil {
		return err
	}
	return p.mp.Shutdown(ctx)
}

func attrsFromLabels(labels map[string]string) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}
