package repositories

import (
	"context"

	"sensor-ingest/db"
	"sensor-ingest/entities"
)

type alertPgRepository struct {
	db db.Database
}

func NewAlertPgRepository(database db.Database) AlertRepository {
	return &alertPgRepository{db: database}
}

func (r *alertPgRepository) GetByDeviceName(ctx context.Context, deviceName string) ([]entities.Alert, error) {
	var alerts []entities.Alert
	err := r.db.GetDB().WithContext(ctx).
		Where("device_name = ?", deviceName).
		Order("timestamp DESC").
		Find(&alerts).Error
	return alerts, err
}
