package repositories

import (
	"context"
	"fmt"
	"time"

	"sensor-ingest/db"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
)

type measurementPgRepository struct {
	db db.Database
}

func NewMeasurementPgRepository(database db.Database) MeasurementRepository {
	return &measurementPgRepository{db: database}
}

// primaryColumns maps each kind to its measurement table and primary metric.
var primaryColumns = map[entities.SensorKind]struct{ table, column string }{
	entities.KindAir:   {"air_measurements", "co2"},
	entities.KindSound: {"sound_measurements", "laeq"},
	entities.KindWater: {"water_measurements", "water_level"},
}

func (r *measurementPgRepository) CountByDevice(ctx context.Context, kind entities.SensorKind, deviceName string) (int64, error) {
	pc, ok := primaryColumns[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %q", errs.ErrUnknownSensorKind, kind)
	}
	var count int64
	err := r.db.GetDB().WithContext(ctx).Table(pc.table).Where("device_name = ?", deviceName).Count(&count).Error
	return count, err
}

func (r *measurementPgRepository) PrimarySeries(ctx context.Context, kind entities.SensorKind, since time.Time) ([]SeriesPoint, error) {
	pc, ok := primaryColumns[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownSensorKind, kind)
	}
	q := r.db.GetDB().WithContext(ctx).
		Table(pc.table).
		Select("device_name, timestamp, " + pc.column + " AS value").
		Where(pc.column + " IS NOT NULL")
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}

	var points []SeriesPoint
	if err := q.Order("timestamp").Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("failed to read %s series: %w", kind, err)
	}
	return points, nil
}
