// Package alerting evaluates threshold rules against canonical records. It
// performs no I/O; persistence and fan-out belong to the caller.
package alerting

import (
	"fmt"

	"sensor-ingest/entities"
)

const (
	TypeHighCO2         = "high_co2"
	TypeHighTemperature = "high_temperature"
	TypeLowTemperature  = "low_temperature"
	TypeHighNoise       = "high_noise"
	TypeLowWaterLevel   = "low_water_level"
	TypeLowBattery      = "low_battery"
)

// Rule fires when its metric crosses Threshold in Direction. Escalate, when
// set, raises the severity to high past the second threshold.
type Rule struct {
	Type      string
	Kind      entities.SensorKind // empty applies to every kind
	Metric    func(*entities.CanonicalRecord) *float64
	Threshold float64
	Above     bool
	Escalate  *float64
	Format    string
}

func (r Rule) fires(v float64) bool {
	if r.Above {
		return v > r.Threshold
	}
	return v < r.Threshold
}

func (r Rule) severity(v float64) entities.Severity {
	if r.Escalate == nil {
		return entities.SeverityMedium
	}
	if (r.Above && v > *r.Escalate) || (!r.Above && v < *r.Escalate) {
		return entities.SeverityHigh
	}
	return entities.SeverityMedium
}

func limit(v float64) *float64 { return &v }

// Rules is the rule table in evaluation order.
var Rules = []Rule{
	{
		Type: TypeHighCO2, Kind: entities.KindAir, Above: true,
		Threshold: 1000, Escalate: limit(2000),
		Metric: func(r *entities.CanonicalRecord) *float64 { return r.Air.CO2 },
		Format: "CO2 at %.1f ppm exceeds %.0f ppm",
	},
	{
		Type: TypeHighTemperature, Kind: entities.KindAir, Above: true,
		Threshold: 30,
		Metric:    func(r *entities.CanonicalRecord) *float64 { return r.Air.Temperature },
		Format:    "High temperature: %.1f°C above %.0f°C",
	},
	{
		Type: TypeLowTemperature, Kind: entities.KindAir,
		Threshold: 10,
		Metric:    func(r *entities.CanonicalRecord) *float64 { return r.Air.Temperature },
		Format:    "Low temperature: %.1f°C below %.0f°C",
	},
	{
		Type: TypeHighNoise, Kind: entities.KindSound, Above: true,
		Threshold: 75, Escalate: limit(85),
		Metric: func(r *entities.CanonicalRecord) *float64 { return r.Sound.LAeq },
		Format: "Noise at %.1f dB exceeds %.0f dB",
	},
	{
		Type: TypeLowWaterLevel, Kind: entities.KindWater,
		Threshold: 20, Escalate: limit(10),
		Metric: func(r *entities.CanonicalRecord) *float64 { return r.Water.Level },
		Format: "Water level at %.1f%% below %.0f%%",
	},
	{
		Type:      TypeLowBattery,
		Threshold: 20,
		Metric:    func(r *entities.CanonicalRecord) *float64 { return r.Battery },
		Format:    "Battery at %.1f%% below %.0f%%",
	},
}

// Evaluate returns the alerts a record triggers, in rule order. It is pure:
// the same record always yields the same alerts.
func Evaluate(rec *entities.CanonicalRecord) []entities.Alert {
	if rec == nil {
		return nil
	}
	var out []entities.Alert
	for _, rule := range Rules {
		if rule.Kind != "" && (rule.Kind != rec.Kind || !hasFields(rec)) {
			continue
		}
		p := rule.Metric(rec)
		if p == nil || !rule.fires(*p) {
			continue
		}
		out = append(out, entities.Alert{
			DeviceName: rec.DeviceName,
			SensorKind: rec.Kind,
			AlertType:  rule.Type,
			Message:    fmt.Sprintf(rule.Format, *p, rule.Threshold),
			Value:      *p,
			Threshold:  rule.Threshold,
			Severity:   rule.severity(*p),
			Timestamp:  rec.Timestamp,
		})
	}
	return out
}

func hasFields(rec *entities.CanonicalRecord) bool {
	switch rec.Kind {
	case entities.KindAir:
		return rec.Air != nil
	case entities.KindSound:
		return rec.Sound != nil
	case entities.KindWater:
		return rec.Water != nil
	}
	return false
}
