// Package observability provides the Factory a node.Node is handed at
// construction time (the components it wires receive only its Logger),
// grounded on the Observability
// interface partition.Node declares inline in the teacher's node.go
// (TracerProvider, Tracer, Meter, PrometheusRegisterer, Logger, Shutdown).
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability is the set of cross-cutting services node.Node is
// constructed with; the router, topology manager and consensus engine it
// builds are handed only its Logger.
type Observability interface {
	TracerProvider() trace.TracerProvider
	Tracer(name string, options ...trace.TracerOption) trace.Tracer
	Meter(name string, opts ...metric.MeterOption) metric.Meter
	PrometheusRegisterer() prometheus.Registerer
	Logger() *slog.Logger
	Shutdown() error
}

// Factory is the default Observability implementation, wiring a real
// OpenTelemetry SDK tracer provider, a Prometheus-backed meter provider, and
// a slog logger, the way the teacher's (unretrieved) observability.Factory
// is constructed from cmd/ubft/main.go's observability.NewFactory() call.
type Factory struct {
	tp  *sdktrace.TracerProvider
	mp  *sdkmetric.MeterProvider
	reg *prometheus.Registry
	log *slog.Logger
}

// NewFactory builds a Factory. registry may be nil, in which case a fresh
// prometheus.Registry is created.
func NewFactory(log *slog.Logger, registry *prometheus.Registry) (*Factory, error) {
	if log == nil {
		return nil, fmt.Errorf("observability: logger must not be nil")
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	exporter, err := newPrometheusExporter(registry)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tp := sdktrace.NewTracerProvider()

	return &Factory{tp: tp, mp: mp, reg: registry, log: log}, nil
}

func (f *Factory) TracerProvider() trace.TracerProvider { return f.tp }

func (f *Factory) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return f.tp.Tracer(name, options...)
}

func (f *Factory) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return f.mp.Meter(name, opts...)
}

func (f *Factory) PrometheusRegisterer() prometheus.Registerer { return f.reg }

func (f *Factory) Logger() *slog.Logger { return f.log }

func (f *Factory) Shutdown() error {
	ctx := context.Background()
	var err error
	if shutErr := f.tp.Shutdown(ctx); shutErr != nil {
		err = shutErr
	}
	if shutErr := f.mp.Shutdown(ctx); shutErr != nil {
		if err != nil {
			return fmt.Errorf("tracer shutdown: %w (meter shutdown: %v)", err, shutErr)
		}
		err = shutErr
	}
	return err
}

// NoOp returns an Observability backed by no-op tracer/meter providers and
// the given logger (or slog.Default() if nil); useful in unit tests that
// don't care about telemetry output, mirroring the teacher's
// internal/testutils/observability helper.
func NoOp(log *slog.Logger) Observability {
	if log == nil {
		log = slog.Default()
	}
	return &noOpObservability{log: log, reg: prometheus.NewRegistry()}
}

type noOpObservability struct {
	log *slog.Logger
	reg *prometheus.Registry
}

func (n *noOpObservability) TracerProvider() trace.TracerProvider { return trace.NewNoopTracerProvider() }
func (n *noOpObservability) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return trace.NewNoopTracerProvider().Tracer(name, options...)
}
func (n *noOpObservability) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	return noopmetric.NewMeterProvider().Meter(name, opts...)
}
func (n *noOpObservability) PrometheusRegisterer() prometheus.Registerer { return n.reg }
func (n *noOpObservability) Logger() *slog.Logger                       { return n.log }
func (n *noOpObservability) Shutdown() error                            { return nil }
