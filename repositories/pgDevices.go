package repositories

import (
	"context"

	"sensor-ingest/db"
	"sensor-ingest/entities"
)

type devicePgRepository struct {
	db db.Database
}

func NewDevicePgRepository(database db.Database) DeviceRepository {
	return &devicePgRepository{db: database}
}

func (r *devicePgRepository) GetByName(ctx context.Context, name string) (*entities.Device, error) {
	var device entities.Device
	err := r.db.GetDB().WithContext(ctx).Where("device_name = ?", name).First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *devicePgRepository) GetAll(ctx context.Context) ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.GetDB().WithContext(ctx).Order("device_name").Find(&devices).Error
	return devices, err
}

func (r *devicePgRepository) CountByKind(ctx context.Context) (map[entities.SensorKind]int64, error) {
	var rows []struct {
		SensorKind entities.SensorKind
		Total      int64
	}
	err := r.db.GetDB().WithContext(ctx).
		Model(&entities.Device{}).
		Select("sensor_kind, count(*) AS total").
		Group("sensor_kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[entities.SensorKind]int64, len(rows))
	for _, row := range rows {
		out[row.SensorKind] = row.Total
	}
	return out, nil
}
