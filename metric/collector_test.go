package metric

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ValidationReport(t *testing.T) {
	c := NewCollector()

	c.RecordValidation("air", ReasonValid)
	c.RecordValidation("air", ReasonValid)
	c.RecordValidation("air", ReasonValid)
	c.RecordValidation("sound", ReasonEmpty)
	c.RecordValidation("water", "missing_required_fields")
	c.RecordValidation("water", "missing_required_fields")
	c.RecordValidation("air", "no_measurement_data")

	s := c.Snapshot()
	assert.Equal(t, int64(7), s.Validation.Total)
	assert.Equal(t, int64(3), s.Validation.Valid)
	assert.Equal(t, int64(1), s.Validation.Empty)
	assert.Equal(t, int64(3), s.Validation.Invalid)
	assert.InDelta(t, 3.0/7.0, s.Validation.ValidityRate, 1e-9)
	assert.InDelta(t, 1.0/7.0, s.Validation.EmptyRate, 1e-9)
	assert.Equal(t, map[string]int64{
		"empty":                   1,
		"missing_required_fields": 2,
		"no_measurement_data":     1,
	}, s.Validation.RejectionReasons)
}

func TestCollector_EmptyValidityRate(t *testing.T) {
	s := NewCollector().Snapshot()
	assert.Zero(t, s.Validation.ValidityRate)
	assert.NotNil(t, s.Validation.RejectionReasons)
}

func TestCollector_SinksAndOutcomes(t *testing.T) {
	c := NewCollector()

	c.RecordReceived("air")
	c.RecordReceived("water")
	c.RecordDurableWrite("air", nil)
	c.RecordDurableWrite("air", errors.New("down"))
	c.RecordCacheWrite("air", errors.New("timeout"))
	c.RecordAlert("air", "high_co2", "high")
	c.RecordAlert("air", "low_battery", "medium")
	c.RecordOutcome("air", "ack", time.Millisecond)
	c.RecordOutcome("air", "requeue", time.Millisecond)
	c.RecordOutcome("air", "reject", time.Millisecond)
	c.RecordPoison("air")
	c.RecordDropped("air", "transform_failed")
	c.RecordConnectionError("rabbitmq")

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Received)
	assert.Equal(t, map[string]int64{"air": 1, "water": 1}, s.ByKind)
	assert.Equal(t, int64(1), s.DurableWrites)
	assert.Equal(t, int64(1), s.DurableFailures)
	assert.Equal(t, int64(1), s.CacheFailures)
	assert.Equal(t, int64(2), s.AlertsCreated)
	assert.Equal(t, int64(1), s.AlertsBySeverity["high"])
	assert.Equal(t, int64(1), s.Acked)
	assert.Equal(t, int64(1), s.Requeued)
	assert.Equal(t, int64(1), s.Rejected)
	assert.Equal(t, int64(1), s.Poison)
	assert.Equal(t, int64(1), s.Dropped)
	assert.Equal(t, int64(1), s.ConnectionErrors)
	assert.Equal(t, int64(5), s.Errors())
	assert.False(t, s.LastProcessed.IsZero())
}

func TestCollector_SnapshotIsCopy(t *testing.T) {
	c := NewCollector()
	c.RecordValidation("air", "x")
	s := c.Snapshot()
	s.Validation.RejectionReasons["x"] = 100

	assert.Equal(t, int64(1), c.Snapshot().Validation.RejectionReasons["x"])
}

func TestCollector_PrometheusExport(t *testing.T) {
	c := NewCollector()
	c.RecordReceived("air")
	c.RecordValidation("air", ReasonEmpty)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["sensor_ingest_messages_received_total"])
	assert.True(t, names["sensor_ingest_validation_records_total"])
}

func TestCollector_ConcurrentUse(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordReceived("sound")
				_ = c.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(800), c.Snapshot().Received)
}
