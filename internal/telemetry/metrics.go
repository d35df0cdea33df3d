package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus backed MeterProvider as the global
// provider and starts Go runtime metrics. Views customize individual
// instruments, see HistogramBuckets.
// It returns the /metrics handler and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string, views ...metric.View) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(newResource(serviceName, serviceVersion)),
		metric.WithView(views...),
	)

	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

// HistogramBuckets overrides the bucket boundaries of the named histogram.
// Money histograms need this: the default boundaries stop at 10000.
func HistogramBuckets(instrument string, bounds ...float64) metric.View {
	return metric.NewView(
		metric.Instrument{Name: instrument},
		metric.Stream{Aggregation: metric.AggregationExplicitBucketHistogram{Boundaries: bounds}},
	)
}
