package usecases

import (
	"context"
	"fmt"
	"time"

	"sensor-ingest/entities"
	"sensor-ingest/etl"
	"sensor-ingest/repositories"
)

// TrainingUseCase prepares historical rows for the external predictor.
type TrainingUseCase struct {
	measurements repositories.MeasurementRepository
}

func NewTrainingUseCase(measurements repositories.MeasurementRepository) *TrainingUseCase {
	return &TrainingUseCase{measurements: measurements}
}

type CleanedSeries struct {
	Kind    entities.SensorKind
	Variant etl.OutlierVariant
	Points  []repositories.SeriesPoint
	Removed int
}

// CleanSeries reads the primary-metric series of kind since the given time
// and drops outliers computed over the whole batch.
func (uc *TrainingUseCase) CleanSeries(ctx context.Context, kind entities.SensorKind, since time.Time, variant etl.OutlierVariant) (*CleanedSeries, error) {
	points, err := uc.measurements.PrimarySeries(ctx, kind, since)
	if err != nil {
		return nil, fmt.Errorf("load %s series: %w", kind, err)
	}
	kept := etl.SuppressOutliers(points, func(p repositories.SeriesPoint) (float64, bool) {
		return p.Value, true
	}, variant)
	return &CleanedSeries{
		Kind:    kind,
		Variant: variant,
		Points:  kept,
		Removed: len(points) - len(kept),
	}, nil
}
