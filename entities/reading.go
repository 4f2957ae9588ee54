package entities

import "fmt"

// Reading is the typed raw schema of one payload. Values are still raw
// Fields; the validator cleans them and the transformer converts them.
type Reading struct {
	Kind SensorKind

	RecordID    Field
	Time        Field
	DeviceName  Field
	Location    Field
	Address     Field
	Latitude    Field
	Longitude   Field
	Battery     Field
	FCnt        Field
	DevAddr     Field
	TenantName  Field
	DeviceClass Field
	Gateways    [MaxGateways]Gateway

	Air   AirReading
	Sound SoundReading
	Water WaterReading

	raw Payload
}

// MaxGateways is the number of rxInfo slots considered for signal metrics.
const MaxGateways = 4

type Gateway struct {
	RSSI Field
	SNR  Field
}

type AirReading struct {
	CO2         Field
	Temperature Field
	Humidity    Field
	Pressure    Field
}

type SoundReading struct {
	LAeq   Field
	LAI    Field
	LAImax Field
	Status Field
}

type WaterReading struct {
	Distance Field
	Level    Field
	Position Field
	Status   Field
	Code     Field
}

// MeasurementField names one kind-specific measurement slot.
type MeasurementField struct {
	Name    string
	Numeric bool
	Value   *Field
}

// NewReading maps payload keys onto the typed schema. Raw uplink keys and
// pre-normalised keys are both accepted.
func NewReading(kind SensorKind, p Payload) Reading {
	r := Reading{
		Kind:        kind,
		RecordID:    p.First("_id", "deduplicationId", "record_id", "id"),
		Time:        p.First("time", "timestamp"),
		DeviceName:  p.First("deviceInfo.deviceName", "device_name", "deviceName"),
		Location:    p.First("deviceInfo.tags.Location", "location"),
		Address:     p.First("deviceInfo.tags.Address", "address"),
		Latitude:    p.First("latitude", "lat"),
		Longitude:   p.First("longitude", "lon", "lng"),
		Battery:     p.First("batteryLevel", "object.battery", "battery", "battery_level"),
		FCnt:        p.First("fCnt", "fcnt"),
		DevAddr:     p.First("devAddr", "dev_addr"),
		TenantName:  p.First("deviceInfo.tenantName", "tenant_name"),
		DeviceClass: p.First("deviceInfo.deviceClassEnabled", "device_class"),
		raw:         p,
	}
	for i := range r.Gateways {
		r.Gateways[i] = Gateway{
			RSSI: p.First(fmt.Sprintf("rxInfo[%d].rssi", i)),
			SNR:  p.First(fmt.Sprintf("rxInfo[%d].snr", i)),
		}
	}
	switch kind {
	case KindAir:
		r.Air = AirReading{
			CO2:         p.First("object.co2", "co2"),
			Temperature: p.First("object.temperature", "temperature"),
			Humidity:    p.First("object.humidity", "humidity"),
			Pressure:    p.First("object.pressure", "pressure"),
		}
	case KindSound:
		r.Sound = SoundReading{
			LAeq:   p.First("object.LAeq", "object.laeq", "laeq"),
			LAI:    p.First("object.LAI", "object.lai", "lai"),
			LAImax: p.First("object.LAImax", "object.laimax", "laimax"),
			Status: p.First("object.status", "status"),
		}
	case KindWater:
		r.Water = WaterReading{
			Distance: p.First("object.distance", "distance"),
			Level:    p.First("object.water_level", "water_level"),
			Position: p.First("object.position", "position"),
			Status:   p.First("object.status", "status"),
			Code:     p.First("object.code", "code"),
		}
	}
	return r
}

// Raw returns the payload the reading was built from.
func (r Reading) Raw() Payload { return r.raw }

// IsEmpty reports whether the underlying payload carries no values at all.
func (r Reading) IsEmpty() bool { return r.raw.IsEmpty() }

// Measurements returns the kind-specific measurement slots. Values point into
// r so callers can null them in place.
func (r *Reading) Measurements() []MeasurementField {
	switch r.Kind {
	case KindAir:
		return []MeasurementField{
			{Name: "co2", Numeric: true, Value: &r.Air.CO2},
			{Name: "temperature", Numeric: true, Value: &r.Air.Temperature},
			{Name: "humidity", Numeric: true, Value: &r.Air.Humidity},
			{Name: "pressure", Numeric: true, Value: &r.Air.Pressure},
		}
	case KindSound:
		return []MeasurementField{
			{Name: "laeq", Numeric: true, Value: &r.Sound.LAeq},
			{Name: "lai", Numeric: true, Value: &r.Sound.LAI},
			{Name: "laimax", Numeric: true, Value: &r.Sound.LAImax},
		}
	case KindWater:
		return []MeasurementField{
			{Name: "distance", Numeric: true, Value: &r.Water.Distance},
			{Name: "water_level", Numeric: true, Value: &r.Water.Level},
			{Name: "position", Value: &r.Water.Position},
		}
	}
	return nil
}
