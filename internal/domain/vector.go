package domain

import "math"

// Normalize returns a unit-length copy of v. Norms accumulate in float64 so repeated
// normalization of an already unit vector is a fixed point within float32 rounding.
func Normalize(v []float32) ([]float32, error) {
	norm := Norm(v)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrDegenerateVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		f := float64(x)
		sum += f * f
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product of a and b. Callers guarantee equal lengths.
func Dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// ClampSimilarity bounds a score to [-1, 1]. Near-1 scores are left as they are; only
// an identical text is promoted to an exact match, by the caller that knows the text.
func ClampSimilarity(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
