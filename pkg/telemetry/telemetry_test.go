package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syepes/hubitat-exporter/pkg/promserver"
	"go.opentelemetry.io/otel/exporters/prometheus"
)

func newTestRecorder(t *testing.T) (*Recorder, *promclient.Registry) {
	t.Helper()
	reg := promclient.NewRegistry()
	e, err := prometheus.New(
		prometheus.WithRegisterer(reg),
		prometheus.WithoutScopeInfo(),
		prometheus.WithoutTargetInfo())
	require.NoError(t, err)
	r, err := NewRecorder(WithMetricsReader(e), WithStopWait(time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return r, reg
}

func TestRecordScrape(t *testing.T) {
	ctx := context.Background()
	r, reg := newTestRecorder(t)

	r.RecordScrape(ctx, promserver.ScrapeResult{
		Duration:          300 * time.Millisecond,
		Detailed:          true,
		Devices:           4,
		Lines:             9,
		CorrelationMisses: 1,
	})
	r.RecordScrape(ctx, promserver.ScrapeResult{
		Duration:     50 * time.Millisecond,
		FailedStages: []string{promserver.StageInventory, promserver.StageDeviceList},
	})
	r.RecordScrape(ctx, promserver.ScrapeResult{
		Duration: 2 * time.Second,
		Devices:  3,
		Lines:    5,
	})

	expect := `
# HELP correlation_misses_total Devices skipped because their id was missing from the inventory.
# TYPE correlation_misses_total counter
correlation_misses_total 1
# HELP fetch_failures_total Failed hub fetches, by scrape stage.
# TYPE fetch_failures_total counter
fetch_failures_total{stage="device_list"} 1
fetch_failures_total{stage="inventory"} 1
# HELP scrape_devices Devices rendered by the last scrape.
# TYPE scrape_devices gauge
scrape_devices 3
# HELP scrape_lines Exposition lines rendered by the last scrape.
# TYPE scrape_lines gauge
scrape_lines 5
# HELP scrapes_total Scrapes served, by label mode.
# TYPE scrapes_total counter
scrapes_total{mode="detailed"} 1
scrapes_total{mode="simple"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expect),
		"correlation_misses_total", "fetch_failures_total", "scrape_devices", "scrape_lines", "scrapes_total"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "scrape_duration") {
			continue
		}
		found = true
		require.Len(t, mf.GetMetric(), 2)
		var count uint64
		for _, m := range mf.GetMetric() {
			count += m.GetHistogram().GetSampleCount()
		}
		assert.Equal(t, uint64(3), count)
	}
	assert.True(t, found, "scrape duration histogram")
}

func TestRecorderAsScrapeRecorder(t *testing.T) {
	r, reg := newTestRecorder(t)
	var _ promserver.ScrapeRecorder = r

	r.RecordScrape(context.Background(), promserver.ScrapeResult{Detailed: true})
	n, err := testutil.GatherAndCount(reg, "scrapes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
