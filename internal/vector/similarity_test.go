package vector

import (
	"errors"
	"math"
	"testing"
)

func TestInnerProduct(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"identical units", []float32{1, 0}, []float32{1, 0}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"mixed", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InnerProduct(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("InnerProduct = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestL2Norm(t *testing.T) {
	tests := []struct {
		name string
		x    []float32
		want float64
	}{
		{"unit", []float32{1, 0, 0}, 1},
		{"pythagorean", []float32{3, 4}, 5},
		{"zero", []float32{0, 0}, 0},
		{"negative components", []float32{-3, 4}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := L2Norm(tt.x)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("L2Norm = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	x := []float32{3, 0, 4, 0}
	if err := Normalize(x); err != nil {
		t.Fatal(err)
	}
	if got := L2Norm(x); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("norm after Normalize = %f, want 1", got)
	}
	if math.Abs(float64(x[0])-0.6) > 1e-6 || math.Abs(float64(x[2])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0 0.8 0]", x)
	}

	// Direction is preserved: cosine between the vector and its normalized
	// self is exactly its norm ratio, i.e. 1 after renormalizing.
	y := []float32{0.6, 0, 0.8, 0}
	if got := InnerProduct(x, y); math.Abs(got-1.0) > 1e-6 {
		t.Errorf("direction changed: cos = %f", got)
	}
}

func TestNormalize_zeroVector(t *testing.T) {
	err := Normalize([]float32{0, 0, 0})
	if !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector, got %v", err)
	}
}

func TestNormalizedCopy_doesNotMutateInput(t *testing.T) {
	in := []float32{2, 0}
	out, err := normalizedCopy(in, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if in[0] != 2 {
		t.Errorf("input mutated: %v", in)
	}
	if math.Abs(float64(out[0])-1.0) > 1e-6 {
		t.Errorf("copy not normalized: %v", out)
	}
}

func TestNormalizedCopy_errors(t *testing.T) {
	if _, err := normalizedCopy([]float32{1, 2, 3}, 2, 4); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := normalizedCopy([]float32{0, 0}, 2, 4); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("expected ErrInvalidVector, got %v", err)
	}
}
