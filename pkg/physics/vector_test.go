// pkg/physics/vector_test.go
package physics

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		vector   r3.Vec
		expected r3.Vec
	}{
		{
			name:     "axis_aligned",
			vector:   Vec(0, 0, 5),
			expected: Vec(0, 0, 1),
		},
		{
			name:     "pythagorean",
			vector:   Vec(3, 4, 0),
			expected: Vec(0.6, 0.8, 0),
		},
		{
			name:     "negative_components",
			vector:   Vec(-2, 0, 0),
			expected: Vec(-1, 0, 0),
		},
		{
			name:     "zero_vector",
			vector:   Vec(0, 0, 0),
			expected: Vec(0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.vector)
			if r3.Norm(r3.Sub(result, tt.expected)) > 1e-12 {
				t.Errorf("Normalize() = %v, expected %v", result, tt.expected)
			}
		})
	}
}

func TestSign(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		expected float64
	}{
		{"positive", 2.5, 1},
		{"negative", -0.1, -1},
		{"zero", 0, 0},
		{"negative_zero", math.Copysign(0, -1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sign(tt.value); got != tt.expected {
				t.Errorf("Sign(%v) = %v, expected %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestComponentAndArrays(t *testing.T) {
	v := Vec(1, -2, 3)
	for i, want := range []float64{1, -2, 3} {
		if got := Component(v, i); got != want {
			t.Errorf("Component(%d) = %v, expected %v", i, got, want)
		}
	}
	if FromArray(ToArray(v)) != v {
		t.Errorf("array conversion changed the vector: %v", FromArray(ToArray(v)))
	}
	if Abs(v) != Vec(1, 2, 3) {
		t.Errorf("Abs() = %v", Abs(v))
	}
}

func TestIsFinite(t *testing.T) {
	if !IsFinite(Vec(1, 2, 3)) {
		t.Error("expected finite vector")
	}
	if IsFinite(Vec(math.NaN(), 0, 0)) {
		t.Error("NaN component should not be finite")
	}
	if IsFinite(Vec(0, math.Inf(-1), 0)) {
		t.Error("Inf component should not be finite")
	}
}
