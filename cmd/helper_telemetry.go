package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/syepes/hubitat-exporter/pkg/telemetry"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
)

func telemetryFlags(f *pflag.FlagSet) {
	f.String("telemetry-listener", "", "if set, serve the exporter's own scrape metrics on this address, apart from the device metrics")
	f.String("telemetry-namespace", "hubitat_exporter", "namespace prefixed to the exporter's own metric names on the telemetry listener")
	f.Duration("stop-wait", telemetry.DefaultStopWait, "maximum duration to wait for telemetry to flush on shutdown")
	f.String("meter-name", telemetry.DefaultMeterName, "name of the meter")

	f.Duration("otel-exporter-interval", 10*time.Second, "OTEL exporter interval. This is the time between sending batches of metrics.")
	f.String("otel-exporter-protocol", "", "if set, push the exporter's own metrics over OTLP. This may be one of `grpc`, `https` or `http`.")
	f.String("otel-exporter-endpoint", "", "OTEL endpoint to send metrics to. This may be in the format of `example.com:4317` or URI `https://example.com:4318/v1/metrics`.")
	f.Bool("otel-exporter-insecure", false, "OTEL exporter insecure flag. This is needed if the endpoint does not support TLS.")
	f.Bool("otel-exporter-gzip", false, "OTEL exporter gzip flag. This will enable gzip compression on the request body.")
	f.StringArray("otel-exporter-header", nil, "OTEL exporter headers specified as `k=v` to add to the request. This may be specified multiple times.")
	f.Bool("otel-exporter-retry", true, "OTEL exporter retry flag. This will enable retry logic on the exporter.")
	f.Duration("otel-exporter-retry-initial-interval", 5*time.Second, "OTEL exporter retry initial interval. This is the time to wait between retries.")
	f.Duration("otel-exporter-retry-max-interval", 30*time.Second, "OTEL exporter retry max interval. This is the upper bound on backoff interval. Once this value is reached the delay between consecutive retries will always be the max-interval.")
	f.Duration("otel-exporter-retry-max-elapsed-time", 1*time.Minute, "OTEL exporter retry max elapsed time. This is the maximum amount of time (including retries) spent trying to send a request/batch. Once this value is reached, the data is discarded.")
	f.Duration("otel-exporter-timeout", 10*time.Second, "OTEL exporter timeout. This is the maximum time to wait for a request to complete.")

	bindEnv(map[string]string{
		"telemetry-listener":     "TELEMETRY_LISTENER",
		"otel-exporter-protocol": "OTEL_EXPORTER_PROTOCOL",
		"otel-exporter-endpoint": "OTEL_EXPORTER_ENDPOINT",
	})
}

func otelHeaders() (map[string]string, error) {
	h := viper.GetStringSlice("otel-exporter-header")
	if len(h) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(h))
	for _, v := range h {
		k, val, ok := strings.Cut(v, "=")
		if !ok {
			return nil, fmt.Errorf("invalid otel exporter header %q", v)
		}
		headers[k] = val
	}
	return headers, nil
}

// telemetryFromFlags builds the scrape recorder and, with --telemetry-listener, the handler
// serving it. Both are nil when self-telemetry is disabled.
func telemetryFromFlags(ctx context.Context) (*telemetry.Recorder, http.Handler, error) {
	opts := []telemetry.Option{
		telemetry.WithStopWait(viper.GetDuration("stop-wait")),
		telemetry.WithMeterName(viper.GetString("meter-name")),
	}
	var enabled bool
	var handler http.Handler

	if viper.GetString("telemetry-listener") != "" {
		reg := promclient.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		e, err := prometheus.New(
			prometheus.WithRegisterer(reg),
			prometheus.WithNamespace(viper.GetString("telemetry-namespace")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("creating prometheus otel exporter: %w", err)
		}
		opts = append(opts, telemetry.WithMetricsReader(e))
		handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
		enabled = true
	}

	headers, err := otelHeaders()
	if err != nil {
		return nil, nil, err
	}
	interval := viper.GetDuration("otel-exporter-interval")
	endpoint := viper.GetString("otel-exporter-endpoint")
	switch protocol := viper.GetString("otel-exporter-protocol"); protocol {
	case "":
	case "grpc":
		gOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithTimeout(viper.GetDuration("otel-exporter-timeout")),
			otlpmetricgrpc.WithRetry(otlpmetricgrpc.RetryConfig{
				Enabled:         viper.GetBool("otel-exporter-retry"),
				InitialInterval: viper.GetDuration("otel-exporter-retry-initial-interval"),
				MaxInterval:     viper.GetDuration("otel-exporter-retry-max-interval"),
				MaxElapsedTime:  viper.GetDuration("otel-exporter-retry-max-elapsed-time"),
			}),
		}
		if endpoint != "" {
			if strings.Contains(endpoint, "://") {
				gOpts = append(gOpts, otlpmetricgrpc.WithEndpointURL(endpoint))
			} else {
				gOpts = append(gOpts, otlpmetricgrpc.WithEndpoint(endpoint))
			}
		}
		if viper.GetBool("otel-exporter-insecure") {
			gOpts = append(gOpts, otlpmetricgrpc.WithInsecure())
		}
		if headers != nil {
			gOpts = append(gOpts, otlpmetricgrpc.WithHeaders(headers))
		}
		if viper.GetBool("otel-exporter-gzip") {
			gOpts = append(gOpts, otlpmetricgrpc.WithCompressor("gzip"))
		}
		e, err := otlpmetricgrpc.New(ctx, gOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating otel exporter: %w", err)
		}
		opts = append(opts, telemetry.WithMetricsExporter(e, interval))
		enabled = true
	case "http", "https":
		hOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithTimeout(viper.GetDuration("otel-exporter-timeout")),
			otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
				Enabled:         viper.GetBool("otel-exporter-retry"),
				InitialInterval: viper.GetDuration("otel-exporter-retry-initial-interval"),
				MaxInterval:     viper.GetDuration("otel-exporter-retry-max-interval"),
				MaxElapsedTime:  viper.GetDuration("otel-exporter-retry-max-elapsed-time"),
			}),
		}
		if endpoint != "" {
			if strings.Contains(endpoint, "://") {
				hOpts = append(hOpts, otlpmetrichttp.WithEndpointURL(endpoint))
			} else {
				hOpts = append(hOpts, otlpmetrichttp.WithEndpoint(endpoint))
			}
		}
		if protocol == "http" || viper.GetBool("otel-exporter-insecure") {
			hOpts = append(hOpts, otlpmetrichttp.WithInsecure())
		}
		if headers != nil {
			hOpts = append(hOpts, otlpmetrichttp.WithHeaders(headers))
		}
		if viper.GetBool("otel-exporter-gzip") {
			hOpts = append(hOpts, otlpmetrichttp.WithCompression(otlpmetrichttp.GzipCompression))
		}
		e, err := otlpmetrichttp.New(ctx, hOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("creating otel exporter: %w", err)
		}
		opts = append(opts, telemetry.WithMetricsExporter(e, interval))
		enabled = true
	default:
		return nil, nil, fmt.Errorf("unknown otel exporter protocol %q", protocol)
	}

	if !enabled {
		return nil, nil, nil
	}
	rec, err := telemetry.NewRecorder(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating telemetry recorder: %w", err)
	}
	return rec, handler, nil
}
