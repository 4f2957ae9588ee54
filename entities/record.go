package entities

import (
	"math"
	"strconv"
	"time"
)

// CanonicalRecord is the validated, enriched form of one reading.
type CanonicalRecord struct {
	Kind       SensorKind
	RecordID   string
	DeviceName string
	Timestamp  time.Time

	Latitude  *float64
	Longitude *float64
	Battery   *float64

	Address     string
	DevAddr     string
	TenantName  string
	DeviceClass string
	FCnt        *int64

	Signal       SignalMetrics
	QualityScore float64
	Quality      DataQuality
	Time         TimeFeatures

	Air   *AirFields
	Sound *SoundFields
	Water *WaterFields
}

// SignalMetrics aggregates per-gateway radio readings. All pointers are nil
// when no gateway contributed a valid value.
type SignalMetrics struct {
	RSSIAvg      *float64
	SNRAvg       *float64
	RSSIMin      *float64
	RSSIMax      *float64
	GatewayCount int
}

type TimeFeatures struct {
	Hour       int     `json:"hour"`
	DayOfWeek  int     `json:"day_of_week"`
	Month      int     `json:"month"`
	IsWeekend  bool    `json:"is_weekend"`
	IsNight    bool    `json:"is_night"`
	IsRushHour bool    `json:"is_rush_hour"`
	HourSin    float64 `json:"hour_sin"`
	HourCos    float64 `json:"hour_cos"`
}

type AirFields struct {
	CO2                 *float64
	Temperature         *float64
	Humidity            *float64
	Pressure            *float64
	DewPoint            *float64
	AirQualityCategory  string
	TemperatureCategory string
}

type SoundFields struct {
	LAeq           *float64
	LAI            *float64
	LAImax         *float64
	NoiseVariation *float64
	Status         string
	NoiseCategory  string
}

type WaterFields struct {
	Distance       *float64
	Level          *float64
	EstimatedLevel *float64
	Position       string
	Status         string
	Code           string
	TankStatus     string
}

// PrimaryMetric returns the value used for ranking and outlier suppression:
// CO2 for air, LAeq for sound, level for water.
func (r *CanonicalRecord) PrimaryMetric() (float64, bool) {
	var p *float64
	switch {
	case r.Air != nil:
		p = r.Air.CO2
	case r.Sound != nil:
		p = r.Sound.LAeq
	case r.Water != nil:
		p = r.Water.Level
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Flatten renders the record as string values for cache hashes and history
// entries. Nil and non-finite values are left out.
func (r *CanonicalRecord) Flatten() map[string]string {
	out := map[string]string{
		"sensor_type":  string(r.Kind),
		"device_name":  r.DeviceName,
		"data_quality": string(r.Quality),
	}
	putStr(out, "record_id", r.RecordID)
	if !r.Timestamp.IsZero() {
		out["timestamp"] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	putStr(out, "address", r.Address)
	putStr(out, "dev_addr", r.DevAddr)
	putStr(out, "tenant_name", r.TenantName)
	putStr(out, "device_class", r.DeviceClass)
	putNum(out, "latitude", r.Latitude)
	putNum(out, "longitude", r.Longitude)
	putNum(out, "battery", r.Battery)
	if r.FCnt != nil {
		out["fcnt"] = strconv.FormatInt(*r.FCnt, 10)
	}
	putNum(out, "quality_score", &r.QualityScore)

	putNum(out, "rssi_avg", r.Signal.RSSIAvg)
	putNum(out, "snr_avg", r.Signal.SNRAvg)
	putNum(out, "rssi_min", r.Signal.RSSIMin)
	putNum(out, "rssi_max", r.Signal.RSSIMax)
	out["gateway_count"] = strconv.Itoa(r.Signal.GatewayCount)

	if !r.Timestamp.IsZero() {
		t := r.Time
		out["hour"] = strconv.Itoa(t.Hour)
		out["day_of_week"] = strconv.Itoa(t.DayOfWeek)
		out["month"] = strconv.Itoa(t.Month)
		out["is_weekend"] = strconv.FormatBool(t.IsWeekend)
		out["is_night"] = strconv.FormatBool(t.IsNight)
		out["is_rush_hour"] = strconv.FormatBool(t.IsRushHour)
		putNum(out, "hour_sin", &t.HourSin)
		putNum(out, "hour_cos", &t.HourCos)
	}

	if a := r.Air; a != nil {
		putNum(out, "co2", a.CO2)
		putNum(out, "temperature", a.Temperature)
		putNum(out, "humidity", a.Humidity)
		putNum(out, "pressure", a.Pressure)
		putNum(out, "dew_point", a.DewPoint)
		putStr(out, "air_quality_category", a.AirQualityCategory)
		putStr(out, "temperature_category", a.TemperatureCategory)
	}
	if s := r.Sound; s != nil {
		putNum(out, "laeq", s.LAeq)
		putNum(out, "lai", s.LAI)
		putNum(out, "laimax", s.LAImax)
		putNum(out, "noise_variation", s.NoiseVariation)
		putStr(out, "status", s.Status)
		putStr(out, "noise_category", s.NoiseCategory)
	}
	if w := r.Water; w != nil {
		putNum(out, "distance", w.Distance)
		putNum(out, "water_level", w.Level)
		putNum(out, "estimated_level", w.EstimatedLevel)
		putStr(out, "position", w.Position)
		putStr(out, "status", w.Status)
		putStr(out, "code", w.Code)
		putStr(out, "tank_status", w.TankStatus)
	}
	return out
}

func putStr(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func putNum(m map[string]string, k string, v *float64) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return
	}
	m[k] = strconv.FormatFloat(*v, 'f', -1, 64)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
