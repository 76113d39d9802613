package vector

import "math"

// Cosine returns the cosine similarity of a and b: (a·b) / (‖a‖·‖b‖).
// The score is 0 when either norm is 0. Vectors of unequal length yield a
// *DimensionMismatchError; a consistently configured embedding provider
// never produces that, but the index defends against it rather than
// silently truncating.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Expected: len(a), Actual: len(b)}
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
