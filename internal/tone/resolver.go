package tone

import (
	"math"
	"sort"

	"github.com/davidbz/tonepipe/internal/domain"
)

const (
	// Weights at or below this magnitude carry no instruction value.
	neutralThreshold = 0.1

	// A prompt with many simultaneous strong directives is
	// self-contradictory, so only the strongest signals are authoritative.
	maxPrimary = 3
)

// Resolve normalizes and buckets each dimension, discards near-neutral
// entries, and splits the remainder into primary (strongest, at most
// three) and secondary (advisory) sets. The sort is stable: ties keep
// the original dimension order so output is deterministic.
func Resolve(dimensions []domain.ToneDimension) domain.ConflictResolution {
	weights := make([]domain.ToneWeight, 0, len(dimensions))

	for _, dim := range dimensions {
		min, max := dim.Range()
		weight := Normalize(dim.Value, min, max)

		if math.Abs(weight) <= neutralThreshold {
			continue
		}

		weights = append(weights, domain.ToneWeight{
			Dimension: dim.ID,
			Weight:    weight,
			Level:     BucketWeight(weight),
		})
	}

	sort.SliceStable(weights, func(i, j int) bool {
		return math.Abs(weights[i].Weight) > math.Abs(weights[j].Weight)
	})

	split := len(weights)
	if split > maxPrimary {
		split = maxPrimary
	}

	return domain.ConflictResolution{
		Primary:   weights[:split],
		Secondary: weights[split:],
	}
}
