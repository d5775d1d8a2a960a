package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// newPrometheusExporter bridges the OpenTelemetry metrics SDK to the given
// Prometheus registry, so that metrics created through the otel Meter API
// (as the teacher's initMetrics does) end up servable from a standard
// promhttp.Handler.
func newPrometheusExporter(reg *prometheus.Registry) (sdkmetric.Reader, error) {
	return otelprometheus.New(otelprometheus.WithRegisterer(reg))
}
