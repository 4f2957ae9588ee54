package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/metric"
	"sensor-ingest/repositories"
)

type fakeReadings struct {
	err    error
	calls  int
	alerts []entities.Alert
}

func (f *fakeReadings) Save(_ context.Context, _ *entities.CanonicalRecord, alerts []entities.Alert) (*repositories.SaveResult, error) {
	f.calls++
	f.alerts = alerts
	if f.err != nil {
		return nil, f.err
	}
	saved := make([]entities.Alert, len(alerts))
	for i, a := range alerts {
		a.ID = "alert-id"
		a.MeasurementID = "m-1"
		saved[i] = a
	}
	return &repositories.SaveResult{MeasurementID: "m-1", Alerts: saved}, nil
}

type fakeCache struct {
	recordErr error
	alertErr  error
	records   int
	alerts    []entities.Alert
}

func (f *fakeCache) WriteRecord(context.Context, *entities.CanonicalRecord) error {
	f.records++
	return f.recordErr
}

func (f *fakeCache) WriteAlert(_ context.Context, a entities.Alert) error {
	f.alerts = append(f.alerts, a)
	return f.alertErr
}

type fakePublisher struct{ published []entities.Alert }

func (f *fakePublisher) Publish(a entities.Alert) { f.published = append(f.published, a) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func highCO2() *entities.CanonicalRecord {
	return &entities.CanonicalRecord{
		Kind:       entities.KindAir,
		DeviceName: "air-01",
		Timestamp:  time.Now(),
		Air:        &entities.AirFields{CO2: entities.Float64(2500)},
	}
}

func TestPersist_BothSinksAndAlerts(t *testing.T) {
	readings, cache, pub := &fakeReadings{}, &fakeCache{}, &fakePublisher{}
	metrics := metric.NewCollector()
	p := NewPersister(readings, cache, pub, metrics, discard())

	res := p.Persist(context.Background(), highCO2())

	assert.True(t, res.DurableOK())
	assert.True(t, res.CacheOK())
	assert.Equal(t, "m-1", res.DurableID)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "high_co2", res.Alerts[0].AlertType)
	assert.Equal(t, entities.SeverityHigh, res.Alerts[0].Severity)

	require.Len(t, cache.alerts, 1)
	assert.Equal(t, "m-1", cache.alerts[0].MeasurementID)
	require.Len(t, pub.published, 1)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.DurableWrites)
	assert.Equal(t, int64(1), snap.CacheWrites)
	assert.Equal(t, int64(1), snap.AlertsCreated)
	assert.Equal(t, int64(1), snap.AlertsBySeverity["high"])
}

func TestPersist_DurableFailureStillWritesCache(t *testing.T) {
	readings := &fakeReadings{err: errs.Transient("save reading", errs.ErrStoreUnavailable)}
	cache, pub := &fakeCache{}, &fakePublisher{}
	metrics := metric.NewCollector()
	p := NewPersister(readings, cache, pub, metrics, discard())

	res := p.Persist(context.Background(), highCO2())

	assert.False(t, res.DurableOK())
	assert.True(t, errs.IsTransient(res.DurableErr))
	assert.True(t, res.CacheOK())
	assert.Equal(t, 1, cache.records)
	assert.Empty(t, res.Alerts)
	assert.Empty(t, cache.alerts, "uncommitted alerts are not mirrored")
	assert.Empty(t, pub.published)
	assert.Len(t, readings.alerts, 1, "alerts were evaluated for the transaction")

	snap := metrics.Snapshot()
	assert.Equal(t, int64(1), snap.DurableFailures)
	assert.Equal(t, int64(1), snap.CacheWrites)
}

func TestPersist_CacheFailureIsReported(t *testing.T) {
	cache := &fakeCache{recordErr: errors.New("redis down"), alertErr: errors.New("redis down")}
	metrics := metric.NewCollector()
	p := NewPersister(&fakeReadings{}, cache, nil, metrics, discard())

	res := p.Persist(context.Background(), highCO2())

	assert.True(t, res.DurableOK())
	assert.False(t, res.CacheOK())
	assert.Equal(t, int64(2), metrics.Snapshot().CacheFailures)
}

func TestPersist_NoAlertsBelowThreshold(t *testing.T) {
	readings, cache := &fakeReadings{}, &fakeCache{}
	p := NewPersister(readings, cache, nil, metric.NewCollector(), discard())

	rec := highCO2()
	rec.Air.CO2 = entities.Float64(800)
	res := p.Persist(context.Background(), rec)

	assert.Empty(t, res.Alerts)
	assert.Empty(t, readings.alerts)
}

func TestStatsReporter_FinalSummary(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	metrics := metric.NewCollector()
	metrics.RecordReceived("air")
	metrics.RecordValidation("air", metric.ReasonValid)
	metrics.RecordOutcome("air", "ack", time.Millisecond)

	r := NewStatsReporter(metrics, time.Hour, log)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	out := buf.String()
	assert.Contains(t, out, "final summary")
	assert.Contains(t, out, "received=1")
	assert.Contains(t, out, "acked=1")
	assert.Contains(t, out, "component=stats")
}

func TestStatsReporter_Ticks(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewStatsReporter(metric.NewCollector(), 10*time.Millisecond, log)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	assert.Contains(t, buf.String(), "ingestion stats")
}
