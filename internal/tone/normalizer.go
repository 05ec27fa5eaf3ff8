// Package tone converts raw dial settings into a mathematical tone
// vector and resolves conflicts between competing dimensions.
package tone

// Normalize maps a raw dial value onto a bipolar scale centered at the
// midpoint of [min, max]. Out-of-range values are clamped, not rejected;
// callers needing strict validation must reject upstream. The result
// lies in exactly [-1.0, 1.0].
func Normalize(rawValue, min, max int) float64 {
	if min >= max {
		return 0
	}

	clamped := rawValue
	if clamped < min {
		clamped = min
	}
	if clamped > max {
		clamped = max
	}

	mid := float64(min+max) / 2
	halfRange := float64(max-min) / 2

	return (float64(clamped) - mid) / halfRange
}
