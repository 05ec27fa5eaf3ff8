package tone

import (
	"math"

	"github.com/davidbz/tonepipe/internal/domain"
)

// Bucket thresholds on |weight|. Boundary values map to the
// lower-magnitude bucket (inclusive on the low side). These breakpoints
// trade instruction granularity against prompt verbosity and are exact
// for test reproducibility.
const (
	moderateThreshold = 0.2
	strongThreshold   = 0.5
)

// BucketWeight maps a signed weight onto a qualitative level.
func BucketWeight(weight float64) domain.Level {
	magnitude := math.Abs(weight)

	switch {
	case magnitude <= moderateThreshold:
		return domain.LevelModerate
	case magnitude <= strongThreshold:
		if weight < 0 {
			return domain.LevelLow
		}
		return domain.LevelHigh
	default:
		if weight < 0 {
			return domain.LevelVeryLow
		}
		return domain.LevelVeryHigh
	}
}
