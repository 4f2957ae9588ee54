package etl

import (
	"math"
	"slices"
)

// OutlierVariant selects the percentile pair and the fence rule.
type OutlierVariant int

const (
	// OutliersStandard uses P1/P99 and fences at 1.5 IQR beyond them.
	OutliersStandard OutlierVariant = iota
	// OutliersStrict uses P5/P95 and keeps only values between them.
	OutliersStrict
)

func (v OutlierVariant) String() string {
	if v == OutliersStrict {
		return "strict"
	}
	return "standard"
}

// Percentile returns the p-th quantile (0..1) of sorted values using linear
// interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// OutlierBounds returns the inclusive keep-range for the batch. ok is false
// for an empty batch.
func OutlierBounds(values []float64, variant OutlierVariant) (lo, hi float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	if variant == OutliersStrict {
		return Percentile(sorted, 0.05), Percentile(sorted, 0.95), true
	}
	q1 := Percentile(sorted, 0.01)
	q3 := Percentile(sorted, 0.99)
	iqr := q3 - q1
	return q1 - 1.5*iqr, q3 + 1.5*iqr, true
}

// SuppressOutliers keeps the items whose metric lies inside the batch's
// outlier bounds. Items without a metric are dropped. Order is preserved.
func SuppressOutliers[T any](items []T, metric func(T) (float64, bool), variant OutlierVariant) []T {
	values := make([]float64, 0, len(items))
	for _, it := range items {
		if v, ok := metric(it); ok {
			values = append(values, v)
		}
	}
	lo, hi, ok := OutlierBounds(values, variant)
	if !ok {
		return nil
	}
	out := make([]T, 0, len(values))
	for _, it := range items {
		v, ok := metric(it)
		if ok && v >= lo && v <= hi {
			out = append(out, it)
		}
	}
	return out
}
