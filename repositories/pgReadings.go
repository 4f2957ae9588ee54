package repositories

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sensor-ingest/db"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
)

type readingPgRepository struct {
	db  db.Database
	now func() time.Time
}

func NewReadingPgRepository(database db.Database) ReadingRepository {
	return &readingPgRepository{db: database, now: time.Now}
}

func (r *readingPgRepository) Save(ctx context.Context, rec *entities.CanonicalRecord, alerts []entities.Alert) (*SaveResult, error) {
	if rec == nil {
		return nil, errs.Invalid("save reading", errs.ErrEmptyRecord)
	}
	measurement, err := toMeasurement(rec)
	if err != nil {
		return nil, errs.Invalid("save reading", err)
	}

	result := &SaveResult{}
	err = r.db.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertDevice(tx, rec, r.seenAt(rec)); err != nil {
			return fmt.Errorf("upsert device %s: %w", rec.DeviceName, err)
		}
		if err := tx.Omit(clause.Associations).Create(measurement).Error; err != nil {
			return fmt.Errorf("insert %s measurement: %w", rec.Kind, err)
		}
		result.MeasurementID = measurementID(measurement)

		if len(alerts) == 0 {
			return nil
		}
		rows := make([]entities.Alert, len(alerts))
		copy(rows, alerts)
		for i := range rows {
			rows[i].MeasurementID = result.MeasurementID
		}
		if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
			return fmt.Errorf("insert alerts: %w", err)
		}
		result.Alerts = rows
		return nil
	})
	if err != nil {
		return nil, errs.ClassifyStore("save reading", err)
	}
	return result, nil
}

// seenAt is the reading's own timestamp, so replayed backlogs keep their
// original sighting times. Receipt time is used only when the record has none.
func (r *readingPgRepository) seenAt(rec *entities.CanonicalRecord) time.Time {
	if rec.Timestamp.IsZero() {
		return r.now()
	}
	return rec.Timestamp
}

// upsertDevice creates the device on first sighting. Later sightings refresh
// whichever optional attributes the record carries and move last_seen forward,
// never back, so out-of-order deliveries keep the newest sighting.
func upsertDevice(tx *gorm.DB, rec *entities.CanonicalRecord, seen time.Time) error {
	device := entities.Device{
		DeviceName:   rec.DeviceName,
		SensorKind:   rec.Kind,
		Latitude:     rec.Latitude,
		Longitude:    rec.Longitude,
		Address:      rec.Address,
		LastSeen:     seen,
		BatteryLevel: rec.Battery,
		IsActive:     true,
	}

	updates := []string{"updated_at", "is_active"}
	if rec.Battery != nil {
		updates = append(updates, "battery_level")
	}
	if rec.Latitude != nil && rec.Longitude != nil {
		updates = append(updates, "latitude", "longitude")
	}
	if rec.Address != "" {
		updates = append(updates, "address")
	}

	set := append(clause.AssignmentColumns(updates), clause.Assignment{
		Column: clause.Column{Name: "last_seen"},
		Value:  latestOf(tx, "devices.last_seen", "excluded.last_seen"),
	})
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_name"}},
		DoUpdates: set,
	}).Create(&device).Error
}

// latestOf picks the later of two columns. SQLite spells GREATEST as the
// two-argument MAX.
func latestOf(tx *gorm.DB, a, b string) clause.Expr {
	if tx.Dialector.Name() == "postgres" {
		return gorm.Expr("GREATEST(" + a + ", " + b + ")")
	}
	return gorm.Expr("MAX(" + a + ", " + b + ")")
}

func toMeasurement(rec *entities.CanonicalRecord) (any, error) {
	meta := entities.MeasurementMeta{
		DeviceName:   rec.DeviceName,
		Timestamp:    rec.Timestamp,
		RecordID:     rec.RecordID,
		Latitude:     rec.Latitude,
		Longitude:    rec.Longitude,
		Battery:      rec.Battery,
		RSSIAvg:      rec.Signal.RSSIAvg,
		SNRAvg:       rec.Signal.SNRAvg,
		RSSIMin:      rec.Signal.RSSIMin,
		RSSIMax:      rec.Signal.RSSIMax,
		GatewayCount: rec.Signal.GatewayCount,
		DataQuality:  rec.Quality,
		QualityScore: rec.QualityScore,
		Features:     features(rec),
	}

	switch rec.Kind {
	case entities.KindAir:
		m := &entities.AirMeasurement{MeasurementMeta: meta}
		if a := rec.Air; a != nil {
			m.CO2 = a.CO2
			m.Temperature = a.Temperature
			m.Humidity = a.Humidity
			m.Pressure = a.Pressure
			m.DewPoint = a.DewPoint
			m.AirQualityCategory = a.AirQualityCategory
			m.TemperatureCategory = a.TemperatureCategory
		}
		return m, nil
	case entities.KindSound:
		m := &entities.SoundMeasurement{MeasurementMeta: meta}
		if s := rec.Sound; s != nil {
			m.LAeq = s.LAeq
			m.LAI = s.LAI
			m.LAImax = s.LAImax
			m.NoiseVariation = s.NoiseVariation
			m.Status = s.Status
			m.NoiseCategory = s.NoiseCategory
		}
		return m, nil
	case entities.KindWater:
		m := &entities.WaterMeasurement{MeasurementMeta: meta}
		if w := rec.Water; w != nil {
			m.Distance = w.Distance
			m.WaterLevel = w.Level
			m.EstimatedLevel = w.EstimatedLevel
			m.Position = w.Position
			m.Status = w.Status
			m.Code = w.Code
			m.TankStatus = w.TankStatus
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %q", errs.ErrUnknownSensorKind, rec.Kind)
}

func measurementID(m any) string {
	switch v := m.(type) {
	case *entities.AirMeasurement:
		return v.ID
	case *entities.SoundMeasurement:
		return v.ID
	case *entities.WaterMeasurement:
		return v.ID
	}
	return ""
}

// features keeps the derived time features and uplink metadata that have no
// column of their own.
func features(rec *entities.CanonicalRecord) datatypes.JSONMap {
	f := datatypes.JSONMap{
		"hour":         rec.Time.Hour,
		"day_of_week":  rec.Time.DayOfWeek,
		"month":        rec.Time.Month,
		"is_weekend":   rec.Time.IsWeekend,
		"is_night":     rec.Time.IsNight,
		"is_rush_hour": rec.Time.IsRushHour,
		"hour_sin":     rec.Time.HourSin,
		"hour_cos":     rec.Time.HourCos,
	}
	if rec.DevAddr != "" {
		f["dev_addr"] = rec.DevAddr
	}
	if rec.TenantName != "" {
		f["tenant_name"] = rec.TenantName
	}
	if rec.DeviceClass != "" {
		f["device_class"] = rec.DeviceClass
	}
	if rec.FCnt != nil {
		f["fcnt"] = *rec.FCnt
	}
	return f
}
