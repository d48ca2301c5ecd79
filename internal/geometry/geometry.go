// Package geometry cuts records outside the configured source-receiver
// geometry windows.
package geometry

import "github.com/seistools/phasealign/internal/model"

// Bounds holds the inclusive cut ranges for the four geometry headers.
// Azimuth bounds with min > max wrap through 360 degrees.
type Bounds struct {
	MinGcarc, MaxGcarc float64
	MinDist, MaxDist   float64
	MinAz, MaxAz       float64
	MinBaz, MaxBaz     float64
}

// Filter returns the subsequence of records inside all four ranges,
// preserving input order. An empty result is valid.
func Filter(records []*model.Record, b Bounds) []*model.Record {
	kept := make([]*model.Record, 0, len(records))
	for _, rec := range records {
		if !inRange(rec.Gcarc, b.MinGcarc, b.MaxGcarc) {
			continue
		}
		if !inRange(rec.Dist, b.MinDist, b.MaxDist) {
			continue
		}
		if !inAzRange(rec.Az, b.MinAz, b.MaxAz) {
			continue
		}
		if !inAzRange(rec.Baz, b.MinBaz, b.MaxBaz) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func inRange(v, min, max float64) bool {
	return v >= min && v <= max
}

func inAzRange(v, min, max float64) bool {
	if min <= max {
		return v >= min && v <= max
	}
	// Wrapped range, e.g. [330, 30].
	return v >= min || v <= max
}
