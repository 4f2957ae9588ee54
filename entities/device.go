package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device is keyed by DeviceName. It is upserted on every accepted record and
// never deleted by the ingest path.
type Device struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceName   string     `gorm:"size:100;uniqueIndex;not null" json:"device_name"`
	SensorKind   SensorKind `gorm:"size:16;not null" json:"sensor_kind"`
	Latitude     *float64   `gorm:"check:chk_devices_latitude,latitude IS NULL OR latitude BETWEEN -90 AND 90" json:"latitude,omitempty"`
	Longitude    *float64   `gorm:"check:chk_devices_longitude,longitude IS NULL OR longitude BETWEEN -180 AND 180" json:"longitude,omitempty"`
	Address      string     `gorm:"type:text" json:"address,omitempty"`
	LastSeen     time.Time  `gorm:"index" json:"last_seen"`
	BatteryLevel *float64   `gorm:"check:chk_devices_battery,battery_level IS NULL OR battery_level BETWEEN 0 AND 100" json:"battery_level,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Has-many relations put the device_name foreign keys on the child tables.
	AirMeasurements   []AirMeasurement   `gorm:"foreignKey:DeviceName;references:DeviceName" json:"-"`
	SoundMeasurements []SoundMeasurement `gorm:"foreignKey:DeviceName;references:DeviceName" json:"-"`
	WaterMeasurements []WaterMeasurement `gorm:"foreignKey:DeviceName;references:DeviceName" json:"-"`
	Alerts            []Alert            `gorm:"foreignKey:DeviceName;references:DeviceName" json:"-"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) (err error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return
}
