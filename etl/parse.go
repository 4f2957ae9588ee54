package etl

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseTimestamp accepts ISO-8601 with or without a zone suffix and the
// space-delimited "YYYY-MM-DD HH:MM:SS[.ffffff]" forms. Values without a zone
// are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// TimestampOrReceipt is the lenient variant used where a record must always
// carry a time: it falls back to the receipt time.
func TimestampOrReceipt(s string, receipt time.Time) time.Time {
	if t, ok := ParseTimestamp(s); ok {
		return t
	}
	return receipt.UTC()
}

// ParseLocation reads a composite "lat,lon" string, tolerating brackets,
// quotes and whitespace. Both components must parse and fall inside valid
// coordinate bounds.
func ParseLocation(s string) (lat, lon float64, ok bool) {
	clean := strings.Trim(strings.TrimSpace(s), `"'[]() `)
	parts := strings.Split(clean, ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, false
	}
	if !validLatitude(lat) || !validLongitude(lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

func validLatitude(v float64) bool  { return v >= -90 && v <= 90 }
func validLongitude(v float64) bool { return v >= -180 && v <= 180 }
