package etl

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/validation"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024-05-01T10:00:00.123+02:00", time.Date(2024, 5, 1, 8, 0, 0, 123e6, time.UTC), true},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{" 2024-05-01 10:00:00.5 ", time.Date(2024, 5, 1, 10, 0, 0, 5e8, time.UTC), true},
		{"01/05/2024 10:00", time.Time{}, false},
		{"", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseTimestamp(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.True(t, tt.want.Equal(got), "%q: got %v", tt.in, got)
	}
}

func TestTimestampOrReceipt(t *testing.T) {
	receipt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, receipt, TimestampOrReceipt("garbage", receipt))
	assert.Equal(t, 2023, TimestampOrReceipt("2023-01-01T00:00:00Z", receipt).Year())
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in       string
		lat, lon float64
		ok       bool
	}{
		{"4.61,-74.08", 4.61, -74.08, true},
		{`"[4.61, -74.08]"`, 4.61, -74.08, true},
		{"  [ -33.9 , 151.2 ]  ", -33.9, 151.2, true},
		{"95,10", 0, 0, false},
		{"10,190", 0, 0, false},
		{"abc,10", 0, 0, false},
		{"4.61", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		lat, lon, ok := ParseLocation(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.lat, lat, tt.in)
		assert.Equal(t, tt.lon, lon, tt.in)
	}
}

func TestAggregateSignal(t *testing.T) {
	gws := []entities.Gateway{
		{RSSI: entities.Num(-140), SNR: entities.Num(5)},
		{RSSI: entities.Num(-90), SNR: entities.Num(25)},
		{RSSI: entities.Num(-60), SNR: entities.Str("7")},
		{RSSI: entities.Num(-200)},
	}
	m := AggregateSignal(gws, validation.Range{Min: -130, Max: 0}, validation.Range{Min: -20, Max: 20})

	require.NotNil(t, m.RSSIAvg)
	assert.Equal(t, -75.0, *m.RSSIAvg)
	assert.Equal(t, -90.0, *m.RSSIMin)
	assert.Equal(t, -60.0, *m.RSSIMax)
	assert.Equal(t, 2, m.GatewayCount)
	require.NotNil(t, m.SNRAvg)
	assert.Equal(t, 6.0, *m.SNRAvg)
}

func TestAggregateSignal_NoValidReadings(t *testing.T) {
	m := AggregateSignal([]entities.Gateway{{RSSI: entities.Num(-500)}, {}}, validation.Range{Min: -130, Max: 0}, validation.Range{Min: -20, Max: 20})
	assert.Nil(t, m.RSSIAvg)
	assert.Nil(t, m.SNRAvg)
	assert.Nil(t, m.RSSIMin)
	assert.Nil(t, m.RSSIMax)
	assert.Zero(t, m.GatewayCount)
}

func TestDewPoint(t *testing.T) {
	dp := DewPoint(25, 50)
	require.NotNil(t, dp)
	assert.InDelta(t, 13.87, *dp, 0.1)

	assert.Nil(t, DewPoint(25, 0))
	assert.Nil(t, DewPoint(25, -3))
}

func TestCategories(t *testing.T) {
	assert.Equal(t, "Excellent", AirQualityCategory(449.9))
	assert.Equal(t, "Good", AirQualityCategory(450))
	assert.Equal(t, "Moderate", AirQualityCategory(999))
	assert.Equal(t, "Poor", AirQualityCategory(1999))
	assert.Equal(t, "Dangerous", AirQualityCategory(2000))

	assert.Equal(t, "Cold", TemperatureCategory(14))
	assert.Equal(t, "Comfortable", TemperatureCategory(22))
	assert.Equal(t, "Hot", TemperatureCategory(30))

	assert.Equal(t, "Quiet", NoiseCategory(49))
	assert.Equal(t, "Very noisy", NoiseCategory(75))
	assert.Equal(t, "Dangerous", NoiseCategory(85))

	assert.Equal(t, "Critical", TankStatus(19.99))
	assert.Equal(t, "Medium", TankStatus(40))
	assert.Equal(t, "Full", TankStatus(80))
}

func TestLevelFromDistance(t *testing.T) {
	assert.Equal(t, 65.0, LevelFromDistance(35))
	assert.Equal(t, 100.0, LevelFromDistance(-5))
	assert.Equal(t, 0.0, LevelFromDistance(140))
}

func TestEstimatedLevelFromCode(t *testing.T) {
	v, ok := EstimatedLevelFromCode("Tanque LLENO")
	assert.True(t, ok)
	assert.Equal(t, 90.0, v)
	v, _ = EstimatedLevelFromCode("medio")
	assert.Equal(t, 50.0, v)
	v, _ = EstimatedLevelFromCode("level_low")
	assert.Equal(t, 20.0, v)
	_, ok = EstimatedLevelFromCode("unknown")
	assert.False(t, ok)
}

func TestTimeFeaturesOf(t *testing.T) {
	f := TimeFeaturesOf(time.Date(2024, 5, 4, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, 23, f.Hour)
	assert.Equal(t, 5, f.DayOfWeek)
	assert.Equal(t, 5, f.Month)
	assert.True(t, f.IsWeekend)
	assert.True(t, f.IsNight)
	assert.False(t, f.IsRushHour)
	assert.InDelta(t, math.Sin(2*math.Pi*23/24), f.HourSin, 1e-12)

	f = TimeFeaturesOf(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, 0, f.DayOfWeek)
	assert.False(t, f.IsWeekend)
	assert.True(t, f.IsRushHour)
	assert.False(t, f.IsNight)
}

func airReading(extra entities.Payload) entities.Reading {
	p := entities.Payload{
		"_id":                      entities.Str("rec-1"),
		"time":                     entities.Str("2024-05-01T10:00:00Z"),
		"deviceInfo.deviceName":    entities.Str("air-01"),
		"deviceInfo.tags.Location": entities.Str("[4.61, -74.08]"),
		"batteryLevel":             entities.Num(88),
		"object.co2":               entities.Num(640),
		"object.temperature":       entities.Num(25),
		"object.humidity":          entities.Num(50),
		"object.pressure":          entities.Num(1012),
	}
	for k, v := range extra {
		p[k] = v
	}
	return entities.NewReading(entities.KindAir, p)
}

func TestTransform_AirRecord(t *testing.T) {
	tr := NewTransformer(DefaultConfig(), nil)
	rec, err := tr.Transform(airReading(nil))
	require.NoError(t, err)

	assert.Equal(t, "air-01", rec.DeviceName)
	assert.Equal(t, "rec-1", rec.RecordID)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, 4.61, *rec.Latitude)
	require.NotNil(t, rec.Air)
	assert.Equal(t, "Moderate", rec.Air.AirQualityCategory)
	assert.Equal(t, "Comfortable", rec.Air.TemperatureCategory)
	require.NotNil(t, rec.Air.DewPoint)
	assert.InDelta(t, 13.87, *rec.Air.DewPoint, 0.1)
	assert.Equal(t, 100.0, rec.QualityScore)
	assert.Equal(t, entities.QualityExcellent, rec.Quality)
	assert.Equal(t, 10, rec.Time.Hour)
}

func TestTransform_CO2OutOfRange(t *testing.T) {
	in := airReading(entities.Payload{"object.co2": entities.Num(9000)})

	permissive := NewTransformer(DefaultConfig(), nil)
	rec, err := permissive.Transform(in)
	require.NoError(t, err)
	assert.Nil(t, rec.Air.CO2)
	assert.Empty(t, rec.Air.AirQualityCategory)
	require.NotNil(t, rec.Air.Temperature)
	require.NotNil(t, rec.Air.Humidity)
	require.NotNil(t, rec.Air.Pressure)
	assert.Equal(t, 80.0, rec.QualityScore)
	assert.Equal(t, entities.QualityGood, rec.Quality)

	cfg := DefaultConfig()
	cfg.Mode = validation.ModeStrict
	rec, err = NewTransformer(cfg, nil).Transform(in)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, ErrFieldOutOfRange)
	assert.True(t, errs.IsInvalid(err))
}

func TestTransform_Rejections(t *testing.T) {
	tr := NewTransformer(DefaultConfig(), nil)

	_, err := tr.Transform(airReading(entities.Payload{"time": entities.Str("yesterday")}))
	assert.ErrorIs(t, err, ErrBadTimestamp)
	assert.True(t, errs.IsInvalid(err))

	_, err = tr.Transform(airReading(entities.Payload{"deviceInfo.deviceName": entities.Null()}))
	assert.ErrorIs(t, err, ErrMissingDevice)

	_, err = tr.Transform(entities.NewReading(entities.KindSound, entities.Payload{
		"_id": entities.Str("s"), "time": entities.Str("2024-05-01T10:00:00Z"),
		"device_name": entities.Str("snd"), "laimax": entities.Num(90),
	}))
	assert.ErrorIs(t, err, ErrMissingPrimary)
}

func TestTransform_BaseNullRatio(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBaseNullRatio = 0.6
	tr := NewTransformer(cfg, nil)

	sparse := entities.NewReading(entities.KindAir, entities.Payload{
		"_id":         entities.Str("r"),
		"time":        entities.Str("2024-05-01T10:00:00Z"),
		"device_name": entities.Str("air-02"),
		"co2":         entities.Num(700),
	})
	_, err := tr.Transform(sparse)
	assert.ErrorIs(t, err, ErrTooManyNulls)

	_, err = NewTransformer(DefaultConfig(), nil).Transform(sparse)
	assert.NoError(t, err)
}

func TestTransform_LocationFallback(t *testing.T) {
	tr := NewTransformer(DefaultConfig(), nil)
	rec, err := tr.Transform(airReading(entities.Payload{
		"deviceInfo.tags.Location": entities.Str("[200, 10]"),
		"latitude":                 entities.Num(6.2),
		"longitude":                entities.Num(-75.5),
	}))
	require.NoError(t, err)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, 6.2, *rec.Latitude)
	assert.Equal(t, -75.5, *rec.Longitude)

	rec, err = tr.Transform(airReading(entities.Payload{"deviceInfo.tags.Location": entities.Str("nowhere")}))
	require.NoError(t, err)
	assert.Nil(t, rec.Latitude)
	assert.Nil(t, rec.Longitude)
}

func TestTransform_Sound(t *testing.T) {
	tr := NewTransformer(DefaultConfig(), nil)
	rec, err := tr.Transform(entities.NewReading(entities.KindSound, entities.Payload{
		"_id":                   entities.Str("s1"),
		"time":                  entities.Str("2024-05-01 18:30:00"),
		"deviceInfo.deviceName": entities.Str("snd-1"),
		"object.LAI":            entities.Num(60),
		"object.LAImax":         entities.Num(80),
		"object.status":         entities.Str("ok"),
	}))
	require.NoError(t, err)
	require.NotNil(t, rec.Sound.LAeq)
	assert.Equal(t, 60.0, *rec.Sound.LAeq)
	assert.Equal(t, 20.0, *rec.Sound.NoiseVariation)
	assert.Equal(t, "Moderate", rec.Sound.NoiseCategory)
	assert.Equal(t, "ok", rec.Sound.Status)
	assert.True(t, rec.Time.IsRushHour)
}

func TestTransform_Water(t *testing.T) {
	tr := NewTransformer(DefaultConfig(), nil)
	rec, err := tr.Transform(entities.NewReading(entities.KindWater, entities.Payload{
		"_id":             entities.Str("w1"),
		"time":            entities.Str("2024-05-01T10:00:00Z"),
		"device_name":     entities.Str("tank-1"),
		"object.distance": entities.Num(35),
		"code":            entities.Str("lleno"),
	}))
	require.NoError(t, err)
	require.NotNil(t, rec.Water.Level)
	assert.Equal(t, 65.0, *rec.Water.Level)
	assert.Equal(t, "High", rec.Water.TankStatus)
	require.NotNil(t, rec.Water.EstimatedLevel)
	assert.Equal(t, 90.0, *rec.Water.EstimatedLevel)
	v, ok := rec.PrimaryMetric()
	assert.True(t, ok)
	assert.Equal(t, 65.0, v)
}

func TestPercentile(t *testing.T) {
	s := []float64{1, 2, 3, 4}
	assert.Equal(t, 2.5, Percentile(s, 0.5))
	assert.Equal(t, 1.0, Percentile(s, 0))
	assert.Equal(t, 4.0, Percentile(s, 1))
	assert.True(t, math.IsNaN(Percentile(nil, 0.5)))
}

func TestSuppressOutliers(t *testing.T) {
	values := make([]float64, 0, 101)
	for i := 1; i <= 100; i++ {
		values = append(values, float64(i))
	}
	values = append(values, 10000)
	id := func(v float64) (float64, bool) { return v, true }

	kept := SuppressOutliers(values, id, OutliersStandard)
	assert.Len(t, kept, 100)
	assert.NotContains(t, kept, 10000.0)

	strict := SuppressOutliers(values, id, OutliersStrict)
	assert.Len(t, strict, 91)
	assert.Equal(t, 6.0, strict[0])
	assert.Equal(t, 96.0, strict[len(strict)-1])

	assert.Nil(t, SuppressOutliers(nil, id, OutliersStandard))
}

func TestSuppressOutliers_DropsMissingMetric(t *testing.T) {
	recs := []*entities.CanonicalRecord{
		{Kind: entities.KindAir, Air: &entities.AirFields{CO2: entities.Float64(500)}},
		{Kind: entities.KindAir, Air: &entities.AirFields{}},
		{Kind: entities.KindAir, Air: &entities.AirFields{CO2: entities.Float64(520)}},
	}
	kept := SuppressOutliers(recs, (*entities.CanonicalRecord).PrimaryMetric, OutliersStandard)
	assert.Len(t, kept, 2)
}
