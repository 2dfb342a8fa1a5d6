package promserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/syepes/hubitat-exporter/pkg/hub"
	"golang.org/x/sync/semaphore"
)

// Scrape stages reported in ScrapeResult.FailedStages.
const (
	StageInventory    = "inventory"
	StageDeviceList   = "device_list"
	StageDeviceDetail = "device_detail"
)

// HubClient is the subset of hub.Client used to serve a scrape.
type HubClient interface {
	HasSession() bool
	Inventory(ctx context.Context) ([]hub.InventoryRecord, error)
	DeviceIDs(ctx context.Context) ([]uint32, error)
	DeviceDetails(ctx context.Context, ids []uint32) ([]hub.DeviceDetail, error)
}

// ScrapeResult summarizes one scrape.
type ScrapeResult struct {
	Duration          time.Duration
	Detailed          bool
	Devices           int
	Lines             int
	CorrelationMisses int
	FailedStages      []string
}

// ScrapeRecorder observes completed scrapes.
type ScrapeRecorder interface {
	RecordScrape(ctx context.Context, r ScrapeResult)
}

type nopRecorder struct{}

func (nopRecorder) RecordScrape(context.Context, ScrapeResult) {}

// Server serves the hub's device state in the text exposition format. Every request triggers a
// full fetch from the hub; requests are served one at a time.
type Server struct {
	ctx                   context.Context
	client                HubClient
	detailed              bool
	scrapeDurationWarning time.Duration
	recorder              ScrapeRecorder
	inFlight              *semaphore.Weighted
	now                   func() time.Time
}

// NewServer builds a Server. Logging uses the logger attached to ctx.
func NewServer(ctx context.Context, client HubClient, opts ...Option) *Server {
	s := &Server{
		ctx:                   ctx,
		client:                client,
		scrapeDurationWarning: DefaultScrapeDurationWarning,
		recorder:              nopRecorder{},
		inFlight:              semaphore.NewWeighted(1),
		now:                   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServeHTTP implements http.Handler. Upstream failures never change the status code; they
// produce an empty or partial body instead.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	l := log.Ctx(s.ctx).With().Str("remote_addr", r.RemoteAddr).Logger()
	if err := s.inFlight.Acquire(r.Context(), 1); err != nil {
		l.Debug().Err(err).Msg("scrape request abandoned while waiting")
		return
	}
	defer s.inFlight.Release(1)

	// Once started, a scrape runs to completion even if the collector goes away.
	ctx := l.WithContext(context.WithoutCancel(r.Context()))
	body, _ := s.Scrape(ctx)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, body); err != nil {
		l.Err(err).Msg("writing scrape response")
	}
}

// Scrape fetches the inventory, device list and device details and renders them.
//
// An inventory failure falls back to simple mode. A device list or device detail failure
// yields an empty body.
func (s *Server) Scrape(ctx context.Context) (string, ScrapeResult) {
	l := log.Ctx(ctx)
	start := s.now()
	var res ScrapeResult

	var inventory InventoryIndex
	if s.detailed && s.client.HasSession() {
		records, err := s.client.Inventory(ctx)
		if err != nil {
			l.Err(err).Msg("fetching device inventory; using simple mode for this scrape")
			res.FailedStages = append(res.FailedStages, StageInventory)
		} else {
			inventory = NewInventoryIndex(records)
			l.Trace().Int("records", len(records)).Msg("device inventory")
		}
	}
	res.Detailed = inventory != nil

	details, stage, err := s.fetchDetails(ctx)
	if err != nil {
		l.Err(err).Str("stage", stage).Msg("fetching devices")
		res.FailedStages = append(res.FailedStages, stage)
		details = nil
	}

	body, stats := buildMetrics(ctx, details, inventory)
	res.Devices = stats.devices
	res.Lines = stats.lines
	res.CorrelationMisses = stats.correlationMisses
	res.Duration = s.now().Sub(start)

	ll := l.With().
		Dur("duration", res.Duration).
		Bool("detailed", res.Detailed).
		Int("devices", res.Devices).
		Int("lines", res.Lines).
		Logger()
	if s.scrapeDurationWarning > 0 && res.Duration > s.scrapeDurationWarning {
		ll.Warn().Dur("threshold", s.scrapeDurationWarning).Msg("scrape exceeded duration warning")
	} else {
		ll.Debug().Msg("scrape complete")
	}
	s.recorder.RecordScrape(ctx, res)
	return body, res
}

func (s *Server) fetchDetails(ctx context.Context) ([]hub.DeviceDetail, string, error) {
	ids, err := s.client.DeviceIDs(ctx)
	if err != nil {
		return nil, StageDeviceList, err
	}
	log.Ctx(ctx).Trace().Uints32("ids", ids).Msg("device ids")
	details, err := s.client.DeviceDetails(ctx, ids)
	if err != nil {
		return nil, StageDeviceDetail, err
	}
	return details, "", nil
}
