package entities

import (
	"fmt"
	"strings"

	"sensor-ingest/errs"
)

// SensorKind is one of the monitored domains.
type SensorKind string

const (
	KindAir   SensorKind = "air"
	KindSound SensorKind = "sound"
	KindWater SensorKind = "water"
)

// AllKinds lists the kinds in queue declaration order.
var AllKinds = []SensorKind{KindAir, KindSound, KindWater}

var kindAliases = map[string]SensorKind{
	"air":         KindAir,
	"aire":        KindAir,
	"air_quality": KindAir,
	"sound":       KindSound,
	"sonido":      KindSound,
	"water":       KindWater,
	"agua":        KindWater,
}

// ParseSensorKind resolves a kind name or one of its legacy aliases.
func ParseSensorKind(s string) (SensorKind, error) {
	k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", errs.ErrUnknownSensorKind, s)
	}
	return k, nil
}

func (k SensorKind) String() string { return string(k) }

// DataQuality buckets the weighted field-presence score.
type DataQuality string

const (
	QualityExcellent DataQuality = "excellent"
	QualityGood      DataQuality = "good"
	QualityModerate  DataQuality = "moderate"
	QualityPoor      DataQuality = "poor"
	QualityUnknown   DataQuality = "unknown"
)

// QualityFromScore maps a 0-100 percentage to its bucket.
func QualityFromScore(pct float64) DataQuality {
	switch {
	case pct >= 90:
		return QualityExcellent
	case pct >= 70:
		return QualityGood
	case pct >= 50:
		return QualityModerate
	case pct >= 0:
		return QualityPoor
	}
	return QualityUnknown
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)
