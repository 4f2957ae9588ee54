// Package etl turns validated readings into canonical records and cleans
// historical batches for model training.
package etl

import (
	"errors"
	"fmt"
	"log/slog"

	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/validation"
)

var (
	ErrMissingDevice   = errors.New("missing device name")
	ErrBadTimestamp    = errors.New("unparseable timestamp")
	ErrTooManyNulls    = errors.New("too many null base fields")
	ErrFieldOutOfRange = errors.New("measurement out of range")
	ErrMissingPrimary  = errors.New("missing primary measurement")
)

type Config struct {
	Mode       validation.Mode
	RSSIBounds validation.Range
	SNRBounds  validation.Range
	// MaxBaseNullRatio rejects records whose share of null base fields is
	// above the ratio. Zero disables the check.
	MaxBaseNullRatio float64
}

func DefaultConfig() Config {
	return Config{
		Mode:       validation.ModePermissive,
		RSSIBounds: validation.Range{Min: -130, Max: 0},
		SNRBounds:  validation.Range{Min: -20, Max: 20},
	}
}

type Transformer struct {
	cfg    Config
	logger *slog.Logger
}

func NewTransformer(cfg Config, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{cfg: cfg, logger: logger.With("component", "transformer")}
}

// Transform maps a reading onto a CanonicalRecord. A nil record comes with
// an invalid-class error naming the reason.
func (t *Transformer) Transform(r entities.Reading) (*entities.CanonicalRecord, error) {
	name, ok := r.DeviceName.Text()
	if !ok {
		return nil, t.reject(r, ErrMissingDevice)
	}
	rawTime, _ := r.Time.Text()
	ts, ok := ParseTimestamp(rawTime)
	if !ok {
		return nil, t.reject(r, fmt.Errorf("%w: %q", ErrBadTimestamp, rawTime))
	}

	rec := &entities.CanonicalRecord{
		Kind:       r.Kind,
		DeviceName: name,
		Timestamp:  ts,
		Time:       TimeFeaturesOf(ts),
	}
	rec.RecordID, _ = r.RecordID.Text()
	rec.Address, _ = r.Address.Text()
	rec.DevAddr, _ = r.DevAddr.Text()
	rec.TenantName, _ = r.TenantName.Text()
	rec.DeviceClass, _ = r.DeviceClass.Text()
	if v, ok := r.FCnt.Float(); ok {
		n := int64(v)
		rec.FCnt = &n
	}
	if v, ok := r.Battery.Float(); ok && validation.DomainRanges["battery"].Contains(v) {
		rec.Battery = &v
	}
	rec.Latitude, rec.Longitude = t.location(r)
	rec.Signal = AggregateSignal(r.Gateways[:], t.cfg.RSSIBounds, t.cfg.SNRBounds)

	if t.cfg.MaxBaseNullRatio > 0 {
		if ratio := baseNullRatio(rec); ratio > t.cfg.MaxBaseNullRatio {
			return nil, t.reject(r, fmt.Errorf("%w: %.0f%%", ErrTooManyNulls, ratio*100))
		}
	}

	var err error
	switch r.Kind {
	case entities.KindAir:
		rec.Air, err = t.air(r.Air)
	case entities.KindSound:
		rec.Sound, err = t.sound(r.Sound)
	case entities.KindWater:
		rec.Water, err = t.water(r.Water)
	default:
		err = errs.ErrUnknownSensorKind
	}
	if err != nil {
		return nil, t.reject(r, err)
	}

	rec.QualityScore, rec.Quality = QualityScore(rec)
	return rec, nil
}

func (t *Transformer) reject(r entities.Reading, err error) error {
	id, _ := r.RecordID.Text()
	t.logger.Warn("record rejected by transform", "kind", r.Kind, "record_id", id, "error", err)
	return errs.Invalid("transform", err)
}

func (t *Transformer) location(r entities.Reading) (*float64, *float64) {
	if s, ok := r.Location.Text(); ok {
		if lat, lon, ok := ParseLocation(s); ok {
			return &lat, &lon
		}
	}
	lat, okLat := r.Latitude.Float()
	lon, okLon := r.Longitude.Float()
	if okLat && okLon && validLatitude(lat) && validLongitude(lon) {
		return &lat, &lon
	}
	return nil, nil
}

// measure reads a numeric measurement and applies its domain range. Out of
// range values are nulled in permissive mode and rejected in strict mode.
func (t *Transformer) measure(name string, f entities.Field) (*float64, error) {
	v, ok := f.Float()
	if !ok {
		if f.IsEmpty() || t.cfg.Mode != validation.ModeStrict {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s is not numeric", ErrFieldOutOfRange, name)
	}
	if rng, declared := validation.DomainRanges[name]; declared && !rng.Contains(v) {
		if t.cfg.Mode == validation.ModeStrict {
			return nil, fmt.Errorf("%w: %s=%v", ErrFieldOutOfRange, name, v)
		}
		t.logger.Debug("measurement nulled", "field", name, "value", v)
		return nil, nil
	}
	return &v, nil
}

func (t *Transformer) air(in entities.AirReading) (*entities.AirFields, error) {
	out := &entities.AirFields{}
	var err error
	if out.CO2, err = t.measure("co2", in.CO2); err != nil {
		return nil, err
	}
	if out.Temperature, err = t.measure("temperature", in.Temperature); err != nil {
		return nil, err
	}
	if out.Humidity, err = t.measure("humidity", in.Humidity); err != nil {
		return nil, err
	}
	if out.Pressure, err = t.measure("pressure", in.Pressure); err != nil {
		return nil, err
	}
	if out.CO2 == nil && out.Temperature == nil && out.Humidity == nil && out.Pressure == nil {
		return nil, ErrMissingPrimary
	}

	if out.Temperature != nil && out.Humidity != nil {
		out.DewPoint = DewPoint(*out.Temperature, *out.Humidity)
	}
	if out.CO2 != nil {
		out.AirQualityCategory = AirQualityCategory(*out.CO2)
	}
	if out.Temperature != nil {
		out.TemperatureCategory = TemperatureCategory(*out.Temperature)
	}
	return out, nil
}

func (t *Transformer) sound(in entities.SoundReading) (*entities.SoundFields, error) {
	out := &entities.SoundFields{}
	var err error
	if out.LAeq, err = t.measure("laeq", in.LAeq); err != nil {
		return nil, err
	}
	if out.LAI, err = t.measure("lai", in.LAI); err != nil {
		return nil, err
	}
	if out.LAImax, err = t.measure("laimax", in.LAImax); err != nil {
		return nil, err
	}
	out.Status, _ = in.Status.Text()

	if out.LAeq == nil && out.LAI != nil {
		laeq := *out.LAI
		out.LAeq = &laeq
	}
	if out.LAeq == nil {
		return nil, ErrMissingPrimary
	}
	out.NoiseCategory = NoiseCategory(*out.LAeq)
	if out.LAImax != nil {
		out.NoiseVariation = entities.Float64(*out.LAImax - *out.LAeq)
	}
	return out, nil
}

func (t *Transformer) water(in entities.WaterReading) (*entities.WaterFields, error) {
	out := &entities.WaterFields{}
	var err error
	if out.Distance, err = t.measure("distance", in.Distance); err != nil {
		return nil, err
	}
	if out.Level, err = t.measure("water_level", in.Level); err != nil {
		return nil, err
	}
	out.Position, _ = in.Position.Text()
	out.Status, _ = in.Status.Text()
	out.Code, _ = in.Code.Text()

	if out.Level == nil && out.Distance != nil {
		out.Level = entities.Float64(LevelFromDistance(*out.Distance))
	}
	if out.Level == nil && out.Position == "" {
		return nil, ErrMissingPrimary
	}
	if est, ok := EstimatedLevelFromCode(out.Code); ok {
		out.EstimatedLevel = &est
	}
	if out.Level != nil {
		out.TankStatus = TankStatus(*out.Level)
	}
	return out, nil
}

// baseNullRatio is the share of identity, radio and location fields that
// are missing from the record.
func baseNullRatio(rec *entities.CanonicalRecord) float64 {
	present := []bool{
		rec.RecordID != "",
		rec.DevAddr != "",
		rec.DeviceClass != "",
		rec.TenantName != "",
		rec.DeviceName != "",
		!rec.Timestamp.IsZero(),
		rec.Address != "",
		rec.Latitude != nil,
		rec.Longitude != nil,
		rec.Battery != nil,
		rec.FCnt != nil,
		rec.Signal.RSSIAvg != nil,
		rec.Signal.SNRAvg != nil,
	}
	missing := 0
	for _, p := range present {
		if !p {
			missing++
		}
	}
	return float64(missing) / float64(len(present))
}
