package telemetry

import (
	"time"

	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
)

type Option func(*Recorder)

// WithStopWait sets the maximum duration we're willing to wait a clean shutdown.
func WithStopWait(stopWait time.Duration) Option {
	return func(r *Recorder) {
		r.stopWait = stopWait
	}
}

// WithMeterName sets the name of the meter.
func WithMeterName(name string) Option {
	return func(r *Recorder) {
		r.meterName = name
	}
}

// WithMetricsExporter enables metrics exporter for a meter provider.
func WithMetricsExporter(e sdkMetric.Exporter, interval time.Duration) Option {
	return func(r *Recorder) {
		r.meterProviderOptions = append(
			r.meterProviderOptions,
			sdkMetric.WithReader(sdkMetric.NewPeriodicReader(e, sdkMetric.WithInterval(interval))))
	}
}

// WithMetricsReader enables metrics reader for a meter provider.
func WithMetricsReader(rd sdkMetric.Reader) Option {
	return func(r *Recorder) {
		r.meterProviderOptions = append(
			r.meterProviderOptions,
			sdkMetric.WithReader(rd))
	}
}
