package etl

import (
	"math"
	"strings"
	"time"

	"sensor-ingest/entities"
	"sensor-ingest/validation"
)

// AggregateSignal averages the per-gateway RSSI and SNR values that fall
// inside the configured bounds. GatewayCount counts accepted RSSI values.
func AggregateSignal(gateways []entities.Gateway, rssiBounds, snrBounds validation.Range) entities.SignalMetrics {
	var rssi, snr []float64
	for _, g := range gateways {
		if v, ok := g.RSSI.Float(); ok && rssiBounds.Contains(v) {
			rssi = append(rssi, v)
		}
		if v, ok := g.SNR.Float(); ok && snrBounds.Contains(v) {
			snr = append(snr, v)
		}
	}

	m := entities.SignalMetrics{GatewayCount: len(rssi)}
	if len(rssi) > 0 {
		lo, hi := rssi[0], rssi[0]
		for _, v := range rssi[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		m.RSSIAvg = entities.Float64(mean(rssi))
		m.RSSIMin = entities.Float64(lo)
		m.RSSIMax = entities.Float64(hi)
	}
	if len(snr) > 0 {
		m.SNRAvg = entities.Float64(mean(snr))
	}
	return m
}

func mean(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Magnus coefficients over water.
const (
	magnusA = 17.27
	magnusB = 237.7
)

// DewPoint returns the Magnus dew point rounded to two decimals, or nil when
// humidity is not positive.
func DewPoint(temperature, humidity float64) *float64 {
	if humidity <= 0 {
		return nil
	}
	alpha := magnusA*temperature/(magnusB+temperature) + math.Log(humidity/100)
	dp := magnusB * alpha / (magnusA - alpha)
	if math.IsNaN(dp) || math.IsInf(dp, 0) {
		return nil
	}
	return entities.Float64(round2(dp))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

type bucket struct {
	below float64
	label string
}

func categorize(v float64, buckets []bucket, top string) string {
	for _, b := range buckets {
		if v < b.below {
			return b.label
		}
	}
	return top
}

var (
	co2Buckets  = []bucket{{450, "Excellent"}, {600, "Good"}, {1000, "Moderate"}, {2000, "Poor"}}
	tempBuckets = []bucket{{15, "Cold"}, {22, "Cool"}, {26, "Comfortable"}, {30, "Warm"}}
	laeqBuckets = []bucket{{50, "Quiet"}, {65, "Moderate"}, {75, "Noisy"}, {85, "Very noisy"}}
	tankBuckets = []bucket{{20, "Critical"}, {40, "Low"}, {60, "Medium"}, {80, "High"}}
)

func AirQualityCategory(co2 float64) string { return categorize(co2, co2Buckets, "Dangerous") }
func TemperatureCategory(t float64) string  { return categorize(t, tempBuckets, "Hot") }
func NoiseCategory(laeq float64) string     { return categorize(laeq, laeqBuckets, "Dangerous") }
func TankStatus(level float64) string       { return categorize(level, tankBuckets, "Full") }

// LevelFromDistance converts a sensor-to-surface distance to a fill
// percentage under a linear 0-100 model.
func LevelFromDistance(distance float64) float64 {
	return round2(math.Max(0, math.Min(100, 100-distance)))
}

// EstimatedLevelFromCode maps a tank status code such as "lleno" or
// "tank_low" to a coarse fill level.
func EstimatedLevelFromCode(code string) (float64, bool) {
	c := strings.ToLower(code)
	for _, e := range codeLevels {
		if strings.Contains(c, e.word) {
			return e.level, true
		}
	}
	return 0, false
}

var codeLevels = []struct {
	word  string
	level float64
}{
	{"lleno", 90}, {"full", 90},
	{"medio", 50}, {"medium", 50},
	{"bajo", 20}, {"low", 20},
}

// TimeFeaturesOf derives calendar features used by the predictor. Monday is
// day 0.
func TimeFeaturesOf(ts time.Time) entities.TimeFeatures {
	h := ts.Hour()
	dow := (int(ts.Weekday()) + 6) % 7
	rad := 2 * math.Pi * float64(h) / 24
	return entities.TimeFeatures{
		Hour:       h,
		DayOfWeek:  dow,
		Month:      int(ts.Month()),
		IsWeekend:  dow >= 5,
		IsNight:    h >= 22 || h < 6,
		IsRushHour: (h >= 7 && h <= 9) || (h >= 17 && h <= 19),
		HourSin:    math.Sin(rad),
		HourCos:    math.Cos(rad),
	}
}
