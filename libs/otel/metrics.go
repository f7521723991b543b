package otelx

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

func setupMetrics(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	), nil
}

// MetricsHandler serves the default Prometheus registry the exporter writes to.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Meter returns a named meter from the global provider. Before Setup runs
// this is a no-op meter, so instruments are always safe to use.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// MustCounter creates an Int64Counter, falling back to a no-op on error.
func MustCounter(m metric.Meter, name, description string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		c, _ = otel.Meter("noop").Int64Counter(name)
	}
	return c
}
