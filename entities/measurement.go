package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MeasurementMeta holds the columns shared by every measurement table.
type MeasurementMeta struct {
	ID           string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DeviceName   string            `gorm:"size:100;not null;index" json:"device_name"`
	Timestamp    time.Time         `gorm:"not null;index" json:"timestamp"`
	RecordID     string            `gorm:"type:text;index" json:"record_id,omitempty"`
	Latitude     *float64          `json:"latitude,omitempty"`
	Longitude    *float64          `json:"longitude,omitempty"`
	Battery      *float64          `json:"battery,omitempty"`
	RSSIAvg      *float64          `gorm:"column:rssi_avg" json:"rssi_avg,omitempty"`
	SNRAvg       *float64          `gorm:"column:snr_avg" json:"snr_avg,omitempty"`
	RSSIMin      *float64          `gorm:"column:rssi_min" json:"rssi_min,omitempty"`
	RSSIMax      *float64          `gorm:"column:rssi_max" json:"rssi_max,omitempty"`
	GatewayCount int               `json:"gateway_count"`
	DataQuality  DataQuality       `gorm:"size:20" json:"data_quality"`
	QualityScore float64           `json:"quality_score"`
	Features     datatypes.JSONMap `json:"features,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (m *MeasurementMeta) assignID() {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
}

type AirMeasurement struct {
	MeasurementMeta

	CO2                 *float64 `gorm:"column:co2;check:chk_air_co2,co2 IS NULL OR co2 BETWEEN 300 AND 5000" json:"co2,omitempty"`
	Temperature         *float64 `gorm:"check:chk_air_temperature,temperature IS NULL OR temperature BETWEEN -50 AND 60" json:"temperature,omitempty"`
	Humidity            *float64 `gorm:"check:chk_air_humidity,humidity IS NULL OR humidity BETWEEN 0 AND 100" json:"humidity,omitempty"`
	Pressure            *float64 `gorm:"check:chk_air_pressure,pressure IS NULL OR pressure BETWEEN 500 AND 1100" json:"pressure,omitempty"`
	DewPoint            *float64 `json:"dew_point,omitempty"`
	AirQualityCategory  string   `gorm:"size:20" json:"air_quality_category,omitempty"`
	TemperatureCategory string   `gorm:"size:20" json:"temperature_category,omitempty"`
}

func (m *AirMeasurement) BeforeCreate(tx *gorm.DB) (err error) {
	m.assignID()
	return
}

type SoundMeasurement struct {
	MeasurementMeta

	LAeq           *float64 `gorm:"column:laeq;check:chk_sound_laeq,laeq IS NULL OR laeq BETWEEN 30 AND 120" json:"laeq,omitempty"`
	LAI            *float64 `gorm:"column:lai;check:chk_sound_lai,lai IS NULL OR lai BETWEEN 30 AND 120" json:"lai,omitempty"`
	LAImax         *float64 `gorm:"column:laimax;check:chk_sound_laimax,laimax IS NULL OR laimax BETWEEN 30 AND 120" json:"laimax,omitempty"`
	NoiseVariation *float64 `json:"noise_variation,omitempty"`
	Status         string   `gorm:"type:text" json:"status,omitempty"`
	NoiseCategory  string   `gorm:"size:20" json:"noise_category,omitempty"`
}

func (m *SoundMeasurement) BeforeCreate(tx *gorm.DB) (err error) {
	m.assignID()
	return
}

type WaterMeasurement struct {
	MeasurementMeta

	Distance       *float64 `gorm:"check:chk_water_distance,distance IS NULL OR distance BETWEEN 0 AND 100" json:"distance,omitempty"`
	WaterLevel     *float64 `gorm:"check:chk_water_level,water_level IS NULL OR water_level BETWEEN 0 AND 100" json:"water_level,omitempty"`
	EstimatedLevel *float64 `json:"estimated_level,omitempty"`
	Position       string   `gorm:"type:text" json:"position,omitempty"`
	Status         string   `gorm:"type:text" json:"status,omitempty"`
	Code           string   `gorm:"type:text" json:"code,omitempty"`
	TankStatus     string   `gorm:"size:20" json:"tank_status,omitempty"`
}

func (m *WaterMeasurement) BeforeCreate(tx *gorm.DB) (err error) {
	m.assignID()
	return
}
