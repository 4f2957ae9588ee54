package services

import (
	"context"
	"log/slog"
	"time"

	"sensor-ingest/metric"
)

// StatsReporter logs a metrics snapshot on a fixed interval and a final
// summary when its context ends.
type StatsReporter struct {
	metrics  *metric.Collector
	interval time.Duration
	log      *slog.Logger
}

func NewStatsReporter(metrics *metric.Collector, interval time.Duration, log *slog.Logger) *StatsReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsReporter{
		metrics:  metrics,
		interval: interval,
		log:      log.With("component", "stats"),
	}
}

// Run blocks until ctx is done.
func (s *StatsReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Report("final summary")
			return
		case <-ticker.C:
			s.Report("ingestion stats")
		}
	}
}

func (s *StatsReporter) Report(msg string) {
	snap := s.metrics.Snapshot()
	if snap.Received == 0 {
		s.log.Info(msg, "uptime", snap.Uptime, "received", 0)
		return
	}
	v := snap.Validation
	s.log.Info(msg,
		"uptime", snap.Uptime,
		"received", snap.Received,
		"by_kind", snap.ByKind,
		"acked", snap.Acked,
		"rejected", snap.Rejected,
		"requeued", snap.Requeued,
		"dropped", snap.Dropped,
		"validity_rate", v.ValidityRate,
		"empty", v.Empty,
		"invalid", v.Invalid,
		"rejection_reasons", v.RejectionReasons,
		"durable_failures", snap.DurableFailures,
		"cache_failures", snap.CacheFailures,
		"alerts", snap.AlertsCreated,
		"errors", snap.Errors(),
	)
}
