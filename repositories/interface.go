package repositories

import (
	"context"
	"time"

	"sensor-ingest/entities"
)

type DeviceRepository interface {
	GetByName(ctx context.Context, name string) (*entities.Device, error)
	GetAll(ctx context.Context) ([]entities.Device, error)
	CountByKind(ctx context.Context) (map[entities.SensorKind]int64, error)
}

// ReadingRepository writes one accepted record as a single transaction:
// device upsert, measurement insert and its alerts.
type ReadingRepository interface {
	Save(ctx context.Context, rec *entities.CanonicalRecord, alerts []entities.Alert) (*SaveResult, error)
}

type MeasurementRepository interface {
	CountByDevice(ctx context.Context, kind entities.SensorKind, deviceName string) (int64, error)
	PrimarySeries(ctx context.Context, kind entities.SensorKind, since time.Time) ([]SeriesPoint, error)
}

type AlertRepository interface {
	GetByDeviceName(ctx context.Context, deviceName string) ([]entities.Alert, error)
}

type SaveResult struct {
	MeasurementID string
	Alerts        []entities.Alert
}

// SeriesPoint is one primary-metric sample read back for training exports.
type SeriesPoint struct {
	DeviceName string    `json:"device_name"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}
