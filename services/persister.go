package services

import (
	"context"
	"log/slog"

	"sensor-ingest/alerting"
	"sensor-ingest/entities"
	"sensor-ingest/metric"
	"sensor-ingest/repositories"
)

// RecordCache is the live-dashboard sink.
type RecordCache interface {
	WriteRecord(ctx context.Context, rec *entities.CanonicalRecord) error
	WriteAlert(ctx context.Context, alert entities.Alert) error
}

// AlertPublisher pushes committed alerts to live subscribers.
type AlertPublisher interface {
	Publish(alert entities.Alert)
}

// PersistResult reports each sink separately. Neither failure blocks the
// other sink.
type PersistResult struct {
	DurableID  string
	DurableErr error
	CacheErr   error
	Alerts     []entities.Alert
}

func (r PersistResult) DurableOK() bool { return r.DurableErr == nil }
func (r PersistResult) CacheOK() bool   { return r.CacheErr == nil }

type Persister struct {
	readings  repositories.ReadingRepository
	cache     RecordCache
	publisher AlertPublisher
	metrics   *metric.Collector
	log       *slog.Logger
}

// NewPersister wires the dual-sink writer. publisher may be nil.
func NewPersister(readings repositories.ReadingRepository, cache RecordCache, publisher AlertPublisher, metrics *metric.Collector, log *slog.Logger) *Persister {
	return &Persister{
		readings:  readings,
		cache:     cache,
		publisher: publisher,
		metrics:   metrics,
		log:       log.With("component", "persister"),
	}
}

// Persist evaluates alert rules, writes the record with its alerts in one
// durable transaction and then refreshes the cache. Alerts are mirrored to
// the latest-alert cache and subscribers only once they are committed.
func (p *Persister) Persist(ctx context.Context, rec *entities.CanonicalRecord) PersistResult {
	kind := string(rec.Kind)
	var res PersistResult

	saved, err := p.readings.Save(ctx, rec, alerting.Evaluate(rec))
	p.metrics.RecordDurableWrite(kind, err)
	if err != nil {
		res.DurableErr = err
		p.log.Error("durable write failed", "kind", kind, "device", rec.DeviceName, "error", err)
	} else {
		res.DurableID = saved.MeasurementID
		res.Alerts = saved.Alerts
	}

	res.CacheErr = p.cache.WriteRecord(ctx, rec)
	p.metrics.RecordCacheWrite(kind, res.CacheErr)
	if res.CacheErr != nil {
		p.log.Warn("cache write failed", "kind", kind, "device", rec.DeviceName, "error", res.CacheErr)
	}

	for _, alert := range res.Alerts {
		p.metrics.RecordAlert(kind, alert.AlertType, string(alert.Severity))
		p.log.Info("alert created",
			"device", alert.DeviceName,
			"type", alert.AlertType,
			"severity", alert.Severity,
			"value", alert.Value,
		)
		if err := p.cache.WriteAlert(ctx, alert); err != nil {
			p.metrics.RecordCacheWrite(kind, err)
			p.log.Warn("latest-alert cache write failed", "device", alert.DeviceName, "type", alert.AlertType, "error", err)
		}
		if p.publisher != nil {
			p.publisher.Publish(alert)
		}
	}
	return res
}
