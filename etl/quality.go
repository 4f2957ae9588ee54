package etl

import "sensor-ingest/entities"

// qualityWeight awards points when the field is present on the record.
type qualityWeight struct {
	field   string
	points  float64
	present func(r *entities.CanonicalRecord) bool
}

func hasLocation(r *entities.CanonicalRecord) bool { return r.Latitude != nil && r.Longitude != nil }
func hasBattery(r *entities.CanonicalRecord) bool  { return r.Battery != nil }

var qualityWeights = map[entities.SensorKind][]qualityWeight{
	entities.KindAir: {
		{"co2", 20, func(r *entities.CanonicalRecord) bool { return r.Air.CO2 != nil }},
		{"temperature", 20, func(r *entities.CanonicalRecord) bool { return r.Air.Temperature != nil }},
		{"humidity", 20, func(r *entities.CanonicalRecord) bool { return r.Air.Humidity != nil }},
		{"pressure", 10, func(r *entities.CanonicalRecord) bool { return r.Air.Pressure != nil }},
		{"battery", 10, hasBattery},
		{"location", 20, hasLocation},
	},
	entities.KindSound: {
		{"laeq", 40, func(r *entities.CanonicalRecord) bool { return r.Sound.LAeq != nil }},
		{"lai", 15, func(r *entities.CanonicalRecord) bool { return r.Sound.LAI != nil }},
		{"laimax", 15, func(r *entities.CanonicalRecord) bool { return r.Sound.LAImax != nil }},
		{"battery", 10, hasBattery},
		{"location", 20, hasLocation},
	},
	entities.KindWater: {
		{"water_level", 40, func(r *entities.CanonicalRecord) bool { return r.Water.Level != nil }},
		{"distance", 20, func(r *entities.CanonicalRecord) bool { return r.Water.Distance != nil }},
		{"battery", 20, hasBattery},
		{"location", 20, hasLocation},
	},
}

// QualityScore returns the weighted field-presence percentage for the
// record's kind and its bucket. Records of unknown shape score as unknown.
func QualityScore(r *entities.CanonicalRecord) (float64, entities.DataQuality) {
	weights, ok := qualityWeights[r.Kind]
	if !ok || !hasKindFields(r) {
		return 0, entities.QualityUnknown
	}
	var score, total float64
	for _, w := range weights {
		total += w.points
		if w.present(r) {
			score += w.points
		}
	}
	if total == 0 {
		return 0, entities.QualityUnknown
	}
	pct := score / total * 100
	return pct, entities.QualityFromScore(pct)
}

func hasKindFields(r *entities.CanonicalRecord) bool {
	switch r.Kind {
	case entities.KindAir:
		return r.Air != nil
	case entities.KindSound:
		return r.Sound != nil
	case entities.KindWater:
		return r.Water != nil
	}
	return false
}
