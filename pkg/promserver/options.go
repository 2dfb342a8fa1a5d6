package promserver

import "time"

const (
	// DefaultScrapeDurationWarning sets the default value for scrape duration warning. By default
	// prometheus scrape_timeout is 10s, so 8s is 80% of this value.
	DefaultScrapeDurationWarning = 8 * time.Second
)

type Option func(*Server)

// WithDetailedMode enables the inventory fetch and the detailed label set.
func WithDetailedMode(detailed bool) Option {
	return func(s *Server) {
		s.detailed = detailed
	}
}

// WithScrapeDurationWarning sets the value for scrape duration warning.
func WithScrapeDurationWarning(t time.Duration) Option {
	return func(s *Server) {
		s.scrapeDurationWarning = t
	}
}

// WithScrapeRecorder receives a summary of every scrape.
func WithScrapeRecorder(r ScrapeRecorder) Option {
	return func(s *Server) {
		s.recorder = r
	}
}
