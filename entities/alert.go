package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Alert is created as a side effect of an accepted measurement and never
// updated by the ingest path.
type Alert struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceName    string     `gorm:"size:100;not null;index" json:"device_name"`
	SensorKind    SensorKind `gorm:"size:16;not null" json:"sensor_kind"`
	AlertType     string     `gorm:"size:50;not null;index" json:"alert_type"`
	Message       string     `gorm:"type:text;not null" json:"message"`
	Value         float64    `json:"value"`
	Threshold     float64    `json:"threshold"`
	Severity      Severity   `gorm:"size:10;not null;check:chk_alerts_severity,severity IN ('low','medium','high')" json:"severity"`
	MeasurementID string     `gorm:"size:36;index" json:"measurement_id"`
	Timestamp     time.Time  `gorm:"index" json:"timestamp"`
	IsResolved    bool       `json:"is_resolved"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}
