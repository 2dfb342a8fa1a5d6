// Package telemetry records the exporter's own scrape statistics through OpenTelemetry. They
// are kept apart from the device exposition and are read through the configured readers and
// exporters.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/syepes/hubitat-exporter/pkg/promserver"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkMetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	// DefaultStopWait is the maximum duration we're willing to wait a clean shutdown.
	DefaultStopWait time.Duration = 5 * time.Second

	// DefaultMeterName is the default name of the meter.
	DefaultMeterName = "github.com/syepes/hubitat-exporter"
)

// Recorder implements promserver.ScrapeRecorder.
type Recorder struct {
	onStop               []func(ctx context.Context) error
	stopWait             time.Duration
	meterName            string
	meterP               *sdkMetric.MeterProvider
	metrics              metrics
	meterProviderOptions []sdkMetric.Option
}

var _ promserver.ScrapeRecorder = (*Recorder)(nil)

// NewRecorder creates the meter provider with the configured readers and exporters and
// registers the scrape instruments on it.
func NewRecorder(opts ...Option) (*Recorder, error) {
	r := &Recorder{
		stopWait:  DefaultStopWait,
		meterName: DefaultMeterName,
	}
	for _, o := range opts {
		o(r)
	}
	r.meterP = sdkMetric.NewMeterProvider(r.meterProviderOptions...)
	r.onStop = append(r.onStop, r.meterP.Shutdown)
	if err := r.metrics.initMeters(r.meterP.Meter(r.meterName)); err != nil {
		return nil, err
	}
	return r, nil
}

type metrics struct {
	scrapes           metric.Int64Counter
	duration          metric.Float64Histogram
	devices           metric.Int64Gauge
	lines             metric.Int64Gauge
	correlationMisses metric.Int64Counter
	fetchFailures     metric.Int64Counter
}

func (m *metrics) initMeters(meter metric.Meter) error {
	var err error
	m.scrapes, err = meter.Int64Counter("scrapes",
		metric.WithDescription("Scrapes served, by label mode."))
	if err != nil {
		return fmt.Errorf("failed to create scrapes metric: %w", err)
	}
	m.duration, err = meter.Float64Histogram("scrape_duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent fetching from the hub and rendering a scrape."),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1, 2.5, 5, 8, 10, 30))
	if err != nil {
		return fmt.Errorf("failed to create scrape_duration metric: %w", err)
	}
	m.devices, err = meter.Int64Gauge("scrape_devices",
		metric.WithDescription("Devices rendered by the last scrape."))
	if err != nil {
		return fmt.Errorf("failed to create scrape_devices metric: %w", err)
	}
	m.lines, err = meter.Int64Gauge("scrape_lines",
		metric.WithDescription("Exposition lines rendered by the last scrape."))
	if err != nil {
		return fmt.Errorf("failed to create scrape_lines metric: %w", err)
	}
	m.correlationMisses, err = meter.Int64Counter("correlation_misses",
		metric.WithDescription("Devices skipped because their id was missing from the inventory."))
	if err != nil {
		return fmt.Errorf("failed to create correlation_misses metric: %w", err)
	}
	m.fetchFailures, err = meter.Int64Counter("fetch_failures",
		metric.WithDescription("Failed hub fetches, by scrape stage."))
	if err != nil {
		return fmt.Errorf("failed to create fetch_failures metric: %w", err)
	}
	return nil
}

func mode(detailed bool) string {
	if detailed {
		return "detailed"
	}
	return "simple"
}

// RecordScrape implements promserver.ScrapeRecorder.
func (r *Recorder) RecordScrape(ctx context.Context, res promserver.ScrapeResult) {
	attrSet := attribute.NewSet(attribute.String("mode", mode(res.Detailed)))
	r.metrics.scrapes.Add(ctx, 1, metric.WithAttributeSet(attrSet))
	r.metrics.duration.Record(ctx, res.Duration.Seconds(), metric.WithAttributeSet(attrSet))
	r.metrics.devices.Record(ctx, int64(res.Devices))
	r.metrics.lines.Record(ctx, int64(res.Lines))
	r.metrics.correlationMisses.Add(ctx, int64(res.CorrelationMisses))
	for _, stage := range res.FailedStages {
		r.metrics.fetchFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// Shutdown flushes exporters and stops the meter provider.
func (r *Recorder) Shutdown(ctx context.Context) {
	ll := log.Ctx(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.stopWait)
	defer cancel()
	for _, stop := range r.onStop {
		if err := stop(ctx); err != nil {
			ll.Err(err).Msg("shutting down telemetry")
		}
	}
}
