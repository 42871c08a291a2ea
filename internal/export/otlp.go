package export

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// OTLPConfig configures the OTLP metric exporter.
type OTLPConfig struct {
	// Endpoint is the gRPC OTLP endpoint (e.g. "otel-collector:4317").
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the gRPC connection.
	Insecure bool `yaml:"insecure"`

	// Interval is the push interval. Defaults to 10s.
	Interval time.Duration `yaml:"interval"`
}

// Gauge is one observed value. Attrs are exported as attributes.
type Gauge struct {
	Name  string
	Value float64
	Attrs map[string]string
}

// GaugeFunc returns the current gauge values. Non-finite values are
// skipped.
type GaugeFunc func() []Gauge

// OTLPExporter manages the OTLP metric export pipeline.
type OTLPExporter struct {
	log      logrus.FieldLogger
	cfg      OTLPConfig
	provider *metric.MeterProvider
	exporter metric.Exporter
	instance string
}

// NewOTLPExporter creates a new OTLP metric exporter.
func NewOTLPExporter(
	log logrus.FieldLogger,
	cfg OTLPConfig,
	instance string,
) *OTLPExporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}

	return &OTLPExporter{
		log:      log.WithField("component", "otlp"),
		cfg:      cfg,
		instance: instance,
	}
}

// Start initializes the OTLP exporter and meter provider.
func (e *OTLPExporter) Start(ctx context.Context) error {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(e.cfg.Endpoint),
	}

	if e.cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("creating OTLP exporter: %w", err)
	}

	e.exporter = exporter

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("perfhud"),
			semconv.ServiceInstanceID(e.instance),
		),
	)
	if err != nil {
		return fmt.Errorf("creating OTLP resource: %w", err)
	}

	e.provider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(
			exporter,
			metric.WithInterval(e.cfg.Interval),
		)),
	)

	e.log.WithField("endpoint", e.cfg.Endpoint).
		Info("OTLP exporter started")

	return nil
}

// MeterProvider returns the configured meter provider for
// creating metrics.
func (e *OTLPExporter) MeterProvider() *metric.MeterProvider {
	return e.provider
}

// ObserveGauges registers the given gauge names and reads their values
// from fn at every collection.
func (e *OTLPExporter) ObserveGauges(names []string, fn GaugeFunc) error {
	if e.provider == nil {
		return fmt.Errorf("OTLP exporter not started")
	}

	meter := e.provider.Meter("github.com/ethpandaops/perfhud")

	gauges := make(map[string]otelmetric.Float64ObservableGauge, len(names))
	instruments := make([]otelmetric.Observable, 0, len(names))

	for _, name := range names {
		g, err := meter.Float64ObservableGauge("perfhud." + name)
		if err != nil {
			return fmt.Errorf("creating gauge %s: %w", name, err)
		}

		gauges[name] = g
		instruments = append(instruments, g)
	}

	_, err := meter.RegisterCallback(
		func(_ context.Context, o otelmetric.Observer) error {
			for _, v := range fn() {
				g, ok := gauges[v.Name]
				if !ok || math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
					continue
				}

				o.ObserveFloat64(g, v.Value, otelmetric.WithAttributes(attrs(v.Attrs)...))
			}

			return nil
		},
		instruments...,
	)
	if err != nil {
		return fmt.Errorf("registering gauge callback: %w", err)
	}

	return nil
}

func attrs(m map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		kvs = append(kvs, attribute.String(k, v))
	}

	return kvs
}

// Stop shuts down the OTLP exporter.
func (e *OTLPExporter) Stop(ctx context.Context) error {
	if e.provider != nil {
		if err := e.provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down OTLP provider: %w", err)
		}
	}

	if e.exporter != nil {
		if err := e.exporter.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down OTLP exporter: %w", err)
		}
	}

	return nil
}
