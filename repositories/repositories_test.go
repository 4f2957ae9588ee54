package repositories

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sensor-ingest/db"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
)

func newTestDatabase(t *testing.T) db.Database {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "repo.db") + "?_pragma=foreign_keys(1)"
	gdb, err := gorm.Open(sqlite.Open(dsn), db.GormConfig("silent"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	d := &db.GormDatabase{DB: gdb}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func airRecord(name string, co2 float64) *entities.CanonicalRecord {
	return &entities.CanonicalRecord{
		Kind:       entities.KindAir,
		RecordID:   "rec-" + name,
		DeviceName: name,
		Timestamp:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Battery:    entities.Float64(80),
		Quality:    entities.QualityGood,
		Signal:     entities.SignalMetrics{GatewayCount: 1, RSSIAvg: entities.Float64(-80)},
		Time:       entities.TimeFeatures{Hour: 10, DayOfWeek: 0, Month: 3},
		Air: &entities.AirFields{
			CO2:                entities.Float64(co2),
			Temperature:        entities.Float64(21),
			AirQualityCategory: "Good",
		},
	}
}

func TestSave_DeviceUpsertIsIdempotent(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	devices := NewDevicePgRepository(database)
	measurements := NewMeasurementPgRepository(database)
	ctx := context.Background()

	rec := airRecord("air-01", 550)
	first, err := repo.Save(ctx, rec, nil)
	require.NoError(t, err)
	second, err := repo.Save(ctx, rec, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.MeasurementID, second.MeasurementID)

	all, err := devices.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "air-01", all[0].DeviceName)
	assert.True(t, all[0].IsActive)

	count, err := measurements.CountByDevice(ctx, entities.KindAir, "air-01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSave_RefreshesLastSeenAndBattery(t *testing.T) {
	database := newTestDatabase(t)
	clock := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := &readingPgRepository{db: database, now: func() time.Time { return clock }}
	devices := NewDevicePgRepository(database)
	ctx := context.Background()

	first := airRecord("air-02", 500)
	_, err := repo.Save(ctx, first, nil)
	require.NoError(t, err)

	got, err := devices.GetByName(ctx, "air-02")
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(first.Timestamp), "last_seen %v", got.LastSeen)

	rec := airRecord("air-02", 510)
	rec.Timestamp = first.Timestamp.Add(time.Hour)
	rec.Battery = entities.Float64(42)
	_, err = repo.Save(ctx, rec, nil)
	require.NoError(t, err)

	got, err = devices.GetByName(ctx, "air-02")
	require.NoError(t, err)
	require.NotNil(t, got.BatteryLevel)
	assert.Equal(t, 42.0, *got.BatteryLevel)
	assert.True(t, got.LastSeen.Equal(rec.Timestamp), "last_seen %v", got.LastSeen)
}

func TestSave_LastSeenNeverMovesBack(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	devices := NewDevicePgRepository(database)
	ctx := context.Background()

	newer := airRecord("air-03", 500)
	_, err := repo.Save(ctx, newer, nil)
	require.NoError(t, err)

	late := airRecord("air-03", 520)
	late.Timestamp = newer.Timestamp.Add(-2 * time.Hour)
	_, err = repo.Save(ctx, late, nil)
	require.NoError(t, err)

	got, err := devices.GetByName(ctx, "air-03")
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(newer.Timestamp), "last_seen %v", got.LastSeen)
}

func TestSave_MissingTimestampUsesReceiptTime(t *testing.T) {
	database := newTestDatabase(t)
	clock := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)
	repo := &readingPgRepository{db: database, now: func() time.Time { return clock }}
	rec := airRecord("air-04", 500)
	rec.Timestamp = time.Time{}
	assert.Equal(t, clock, repo.seenAt(rec))
	assert.Equal(t, airRecord("air-04", 500).Timestamp, repo.seenAt(airRecord("air-04", 500)))
}

func TestSave_AlertsReferenceMeasurement(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	alertsRepo := NewAlertPgRepository(database)
	ctx := context.Background()

	rec := airRecord("air-03", 2500)
	alerts := []entities.Alert{{
		DeviceName: "air-03",
		SensorKind: entities.KindAir,
		AlertType:  "high_co2",
		Message:    "CO2 level 2500 ppm exceeds 1000 ppm",
		Value:      2500,
		Threshold:  1000,
		Severity:   entities.SeverityHigh,
		Timestamp:  rec.Timestamp,
	}}

	res, err := repo.Save(ctx, rec, alerts)
	require.NoError(t, err)
	require.Len(t, res.Alerts, 1)
	assert.Equal(t, res.MeasurementID, res.Alerts[0].MeasurementID)
	assert.NotEmpty(t, res.Alerts[0].ID)
	assert.Empty(t, alerts[0].MeasurementID, "caller slice is not modified")

	stored, err := alertsRepo.GetByDeviceName(ctx, "air-03")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, res.MeasurementID, stored[0].MeasurementID)
}

func TestSave_ConstraintViolationRollsBack(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	measurements := NewMeasurementPgRepository(database)
	ctx := context.Background()

	_, err := repo.Save(ctx, airRecord("air-04", 9000), nil)
	require.Error(t, err)
	assert.True(t, errs.IsInvalid(err))

	var devices int64
	require.NoError(t, database.GetDB().Model(&entities.Device{}).Count(&devices).Error)
	assert.Zero(t, devices, "device upsert rolled back with the measurement")

	count, err := measurements.CountByDevice(ctx, entities.KindAir, "air-04")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSave_ClosedStoreIsTransient(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	require.NoError(t, database.Close())

	_, err := repo.Save(context.Background(), airRecord("air-05", 600), nil)
	require.Error(t, err)
	assert.True(t, errs.IsTransient(err))
}

func TestSave_UnknownKind(t *testing.T) {
	repo := NewReadingPgRepository(newTestDatabase(t))
	rec := airRecord("x", 600)
	rec.Kind = "light"
	_, err := repo.Save(context.Background(), rec, nil)
	assert.True(t, errs.IsInvalid(err))
}

func TestPrimarySeries(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	measurements := NewMeasurementPgRepository(database)
	ctx := context.Background()

	for i, v := range []float64{500, 700, 900} {
		rec := airRecord("air-06", v)
		rec.Timestamp = rec.Timestamp.Add(time.Duration(i) * time.Minute)
		_, err := repo.Save(ctx, rec, nil)
		require.NoError(t, err)
	}
	noCO2 := airRecord("air-06", 0)
	noCO2.Air.CO2 = nil
	_, err := repo.Save(ctx, noCO2, nil)
	require.NoError(t, err)

	points, err := measurements.PrimarySeries(ctx, entities.KindAir, time.Time{})
	require.NoError(t, err)
	require.Len(t, points, 3)
	values := []float64{points[0].Value, points[1].Value, points[2].Value}
	assert.ElementsMatch(t, []float64{500, 700, 900}, values)
	assert.Equal(t, "air-06", points[0].DeviceName)

	_, err = measurements.PrimarySeries(ctx, "light", time.Time{})
	assert.ErrorIs(t, err, errs.ErrUnknownSensorKind)
}

func TestCountByKind(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	ctx := context.Background()

	_, err := repo.Save(ctx, airRecord("air-a", 600), nil)
	require.NoError(t, err)
	_, err = repo.Save(ctx, airRecord("air-b", 600), nil)
	require.NoError(t, err)
	_, err = repo.Save(ctx, &entities.CanonicalRecord{
		Kind:       entities.KindWater,
		DeviceName: "tank-1",
		Timestamp:  time.Now(),
		Quality:    entities.QualityModerate,
		Water:      &entities.WaterFields{Level: entities.Float64(55)},
	}, nil)
	require.NoError(t, err)

	counts, err := NewDevicePgRepository(database).CountByKind(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[entities.KindAir])
	assert.Equal(t, int64(1), counts[entities.KindWater])
}

func TestSave_LongUpstreamStrings(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewReadingPgRepository(database)
	long := strings.Repeat("x", 300)

	rec := &entities.CanonicalRecord{
		Kind:       entities.KindWater,
		RecordID:   long,
		DeviceName: "tank-9",
		Timestamp:  time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Quality:    entities.QualityModerate,
		Water: &entities.WaterFields{
			Level:    entities.Float64(55),
			Position: long,
			Status:   long,
			Code:     long,
		},
	}
	res, err := repo.Save(context.Background(), rec, nil)
	require.NoError(t, err)

	var got entities.WaterMeasurement
	require.NoError(t, database.GetDB().First(&got, "id = ?", res.MeasurementID).Error)
	assert.Equal(t, long, got.Code)
	assert.Equal(t, long, got.RecordID)
}
