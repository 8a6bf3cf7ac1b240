package model

import (
	"fmt"
	"math"
)

// BaselineKey identifies a calibration segment.
type BaselineKey struct {
	PositionCode string `json:"position_code"`
	IndustryCode string `json:"industry_code"`
	Language     string `json:"language"`
}

// Segment renders the key in its canonical "position/industry/language" form.
func (k BaselineKey) Segment() string {
	return fmt.Sprintf("%s/%s/%s", k.PositionCode, k.IndustryCode, k.Language)
}

// IndustryOnly strips the key down to its industry dimension, the first
// fallback level when an exact segment has too few samples.
func (k BaselineKey) IndustryOnly() BaselineKey {
	return BaselineKey{IndustryCode: k.IndustryCode}
}

// Baseline holds the running mean and standard deviation of raw composite
// scores for one segment. Readers always see a consistent (version, mean,
// stddev) triple; writers publish a new version instead of mutating in place.
type Baseline struct {
	Key         BaselineKey `json:"key"`
	Version     int64       `json:"version"`
	SampleCount int64       `json:"sample_count"`
	Mean        float64     `json:"mean"`
	StdDev      float64     `json:"stddev"`
	// M2 is the running sum of squared deviations (Welford). Carried so the
	// next incremental update can extend the aggregate exactly.
	M2 float64 `json:"m2"`
}

// Observe folds one raw composite score into the aggregate and returns the
// updated baseline with its version advanced. The receiver is not modified.
func (b Baseline) Observe(raw float64) Baseline {
	n := b.SampleCount + 1
	delta := raw - b.Mean
	mean := b.Mean + delta/float64(n)
	m2 := b.M2 + delta*(raw-mean)

	next := Baseline{
		Key:         b.Key,
		Version:     b.Version + 1,
		SampleCount: n,
		Mean:        mean,
		M2:          m2,
	}
	if n > 1 && m2 > 0 {
		next.StdDev = math.Sqrt(m2 / float64(n-1))
	}
	return next
}
