// Package validation rejects readings that are empty, lack identity fields,
// carry no measurement, or hold values outside their physical domain, before
// any transformation work is done.
package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"sensor-ingest/entities"
	"sensor-ingest/errs"
)

type Mode string

const (
	// ModePermissive nulls out-of-range fields and keeps the record if any
	// measurement survives.
	ModePermissive Mode = "permissive"
	// ModeStrict rejects the whole record on the first out-of-range field.
	ModeStrict Mode = "strict"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePermissive, "":
		return ModePermissive, nil
	case ModeStrict:
		return ModeStrict, nil
	}
	return "", fmt.Errorf("unknown validation mode %q", s)
}

// Rejection reasons. They double as metric label values.
const (
	ReasonEmpty           = "empty"
	ReasonMissingRequired = "missing_required_fields"
	ReasonNoMeasurement   = "no_measurement_data"
	ReasonOutOfRange      = "out_of_range"
)

// Range is an inclusive numeric domain.
type Range struct {
	Min, Max float64
}

func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// DomainRanges are the accepted bounds per measurement field. The same
// bounds are enforced by check constraints on the measurement tables.
var DomainRanges = map[string]Range{
	"co2":         {300, 5000},
	"temperature": {-50, 60},
	"humidity":    {0, 100},
	"pressure":    {500, 1100},
	"laeq":        {30, 120},
	"lai":         {30, 120},
	"laimax":      {30, 120},
	"distance":    {0, 100},
	"water_level": {0, 100},
	"battery":     {0, 100},
}

// Recorder receives one call per validated reading; reason is empty for
// accepted readings.
type Recorder interface {
	RecordValidation(kind, reason string)
}

type Result struct {
	Accepted bool
	Reason   string
	// Nulled lists fields cleared in permissive mode.
	Nulled []string
}

// Err converts a rejection into a classified error. It returns nil for
// accepted results.
func (r Result) Err() error {
	if r.Accepted {
		return nil
	}
	var sentinel error
	switch r.Reason {
	case ReasonEmpty:
		sentinel = errs.ErrEmptyRecord
	case ReasonMissingRequired:
		sentinel = errs.ErrMissingRequired
	case ReasonNoMeasurement:
		sentinel = errs.ErrNoMeasurement
	default:
		sentinel = errs.ErrOutOfRange
	}
	return errs.Invalid("validate", sentinel)
}

type Validator struct {
	mode     Mode
	recorder Recorder
	logger   *slog.Logger
}

func New(mode Mode, recorder Recorder, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		mode:     mode,
		recorder: recorder,
		logger:   logger.With("component", "validator"),
	}
}

func (v *Validator) Mode() Mode { return v.mode }

// Validate applies the rules in order and stops at the first failure. The
// returned reading is a copy with out-of-range fields nulled in permissive
// mode; the input is never modified.
func (v *Validator) Validate(r entities.Reading) (entities.Reading, Result) {
	res := v.check(&r)
	if v.recorder != nil {
		v.recorder.RecordValidation(string(r.Kind), res.Reason)
	}
	if !res.Accepted {
		v.logger.Debug("reading rejected", "kind", r.Kind, "reason", res.Reason)
	} else if len(res.Nulled) > 0 {
		v.logger.Warn("out-of-range fields nulled", "kind", r.Kind, "fields", res.Nulled)
	}
	return r, res
}

func (v *Validator) check(r *entities.Reading) Result {
	if r.IsEmpty() {
		return Result{Reason: ReasonEmpty}
	}
	if r.RecordID.IsEmpty() || r.Time.IsEmpty() {
		return Result{Reason: ReasonMissingRequired}
	}

	fields := r.Measurements()
	if !anyPresent(fields) {
		return Result{Reason: ReasonNoMeasurement}
	}

	var nulled []string
	for _, f := range fields {
		if !f.Numeric || f.Value.IsEmpty() {
			continue
		}
		if InRange(f.Name, *f.Value) {
			continue
		}
		if v.mode == ModeStrict {
			return Result{Reason: ReasonOutOfRange}
		}
		*f.Value = entities.Null()
		nulled = append(nulled, f.Name)
	}
	if len(nulled) > 0 && !anyPresent(fields) {
		return Result{Reason: ReasonNoMeasurement, Nulled: nulled}
	}
	return Result{Accepted: true, Nulled: nulled}
}

// InRange reports whether a non-empty value parses as a number inside the
// field's domain. Fields without a declared range only need to parse.
func InRange(name string, f entities.Field) bool {
	val, ok := f.Float()
	if !ok {
		return false
	}
	rng, declared := DomainRanges[name]
	return !declared || rng.Contains(val)
}

func anyPresent(fields []entities.MeasurementField) bool {
	for _, f := range fields {
		if !f.Value.IsEmpty() {
			return true
		}
	}
	return false
}
