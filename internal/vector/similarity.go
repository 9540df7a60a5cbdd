package vector

import (
	"fmt"
	"math"
)

// InnerProduct returns the inner product of two vectors. For unit-length
// vectors this equals cosine similarity.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// L2Norm returns the Euclidean norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v * v)
	}
	return math.Sqrt(sum)
}

// Normalize scales x in place to unit L2 norm. A zero-norm vector cannot be
// normalized and returns ErrInvalidVector with x unchanged.
func Normalize(x []float32) error {
	norm := L2Norm(x)
	if norm == 0 {
		return ErrInvalidVector
	}
	inv := float32(1 / norm)
	for i := range x {
		x[i] *= inv
	}
	return nil
}

// normalizedCopy returns a unit-length copy of v, or an error naming position
// i when v has the wrong length or zero norm.
func normalizedCopy(v []float32, dimensions, i int) ([]float32, error) {
	if len(v) != dimensions {
		return nil, fmt.Errorf("vector %d: %w: got %d, expected %d", i, ErrDimensionMismatch, len(v), dimensions)
	}
	cp := make([]float32, dimensions)
	copy(cp, v)
	if err := Normalize(cp); err != nil {
		return nil, fmt.Errorf("vector %d: %w", i, err)
	}
	return cp, nil
}
