package vector

import "math"

// cosineDistance returns 1 minus the cosine similarity of a and b.
// 0 means identical direction, 2 means opposite. Vectors with zero norm are
// maximally distant from everything (distance 1).
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i] * b[i])
		na += float64(a[i] * a[i])
		nb += float64(b[i] * b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// Similarity converts a cosine distance into the ranking score used
// throughout Kura: 1/(1+distance). Distance 0 maps to similarity 1 and large
// distances asymptotically approach 0. This is a design choice, not a
// probability; thresholds supplied by callers depend on this exact mapping.
func Similarity(distance float64) float64 {
	return 1 / (1 + distance)
}
